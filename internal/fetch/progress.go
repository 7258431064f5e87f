package fetch

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"grantfeed/internal/logging"
)

// progressWriter counts bytes and emits sampled progress logs.
type progressWriter struct {
	logger  *slog.Logger
	sampler *logging.ProgressSampler
	total   int64
	written int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total > 0 {
		percent := float64(p.written) * 100 / float64(p.total)
		if p.sampler.ShouldLog(percent, "download") {
			p.logger.Info("download progress",
				logging.String(logging.FieldEventType, "download_progress"),
				logging.Int64("downloaded_bytes", p.written),
				logging.Int64("total_bytes", p.total),
				logging.Any("progress_percent", percent),
			)
		}
	}
	return len(b), nil
}

// newBar returns a terminal progress bar, or nil when stderr is not a terminal.
func newBar(enabled bool, total int64, name string) *progressbar.ProgressBar {
	if !enabled {
		return nil
	}
	fd := os.Stderr.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return nil
	}
	if total <= 0 {
		total = -1
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func sinks(file io.Writer, counter *progressWriter, bar *progressbar.ProgressBar) io.Writer {
	if bar == nil {
		return io.MultiWriter(file, counter)
	}
	return io.MultiWriter(file, counter, bar)
}
