package log

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	batchIDKey contextKey = iota
	repositoryKey
)

// Attribute names of context tags.
const (
	BatchIDAttr    = "batch_id"
	RepositoryAttr = "repository"
)

// WithBatchID tags ctx with a batch run id.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDKey, id)
}

// WithRepository tags ctx with the repository being analyzed.
func WithRepository(ctx context.Context, url string) context.Context {
	return context.WithValue(ctx, repositoryKey, url)
}

// BatchID returns the batch id ctx was tagged with, or "".
func BatchID(ctx context.Context) string {
	id, _ := ctx.Value(batchIDKey).(string)
	return id
}

// Repository returns the repository ctx was tagged with, or "".
func Repository(ctx context.Context) string {
	url, _ := ctx.Value(repositoryKey).(string)
	return url
}

// contextHandler adds the tags of the record's context as attributes.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := BatchID(ctx); id != "" {
		r.AddAttrs(slog.String(BatchIDAttr, id))
	}
	if url := Repository(ctx); url != "" {
		r.AddAttrs(slog.String(RepositoryAttr, url))
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name)}
}
