package tracking

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// BarReporter draws file progress on a terminal.
type BarReporter struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
	max int
}

// NewBarReporter creates a bar writing to w. The maximum is unknown until
// the first snapshot that carries one.
func NewBarReporter(w io.Writer, description string) *BarReporter {
	return &BarReporter{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(w),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		),
	}
}

// OnChange moves the bar to the number of finished files.
func (b *BarReporter) OnChange(_ context.Context, totals Totals) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if totals.Total > 0 && totals.Total != b.max {
		b.max = totals.Total
		b.bar.ChangeMax(totals.Total)
	}
	if err := b.bar.Set(totals.Files); err != nil {
		return err
	}
	if totals.Final {
		return b.bar.Finish()
	}
	return nil
}
