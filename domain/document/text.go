package document

// Text is a deduplicated source text shared by every node that spans it.
type Text struct {
	text string
}

// NewText creates a Text.
func NewText(text string) Text {
	return Text{text: text}
}

// Collection implements Document.
func (t Text) Collection() string { return string(KindText) }

// Key implements Document.
func (t Text) Key() string { return TextKey(t.text) }

// Length returns the number of code points.
func (t Text) Length() int { return TextLength(t.text) }

// Text returns the raw text.
func (t Text) Text() string { return t.text }

// Payload implements Document.
func (t Text) Payload() map[string]any {
	return map[string]any{
		"_key":   t.Key(),
		"length": t.Length(),
		"text":   t.text,
	}
}
