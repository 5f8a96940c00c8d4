package middleware

import (
	"log/slog"
	"time"

	"github.com/frel-dev/frel/pkg/runtime"
)

// Logging returns middleware that logs every handled event to logger.
func Logging(logger *slog.Logger) runtime.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next runtime.Handler) runtime.Handler {
		return func(f *runtime.Frame, ev runtime.Event) error {
			start := time.Now()
			err := next(f, ev)
			attrs := []any{
				slog.String("event", ev.Type),
				slog.Uint64("seq", ev.Seq),
				slog.Uint64("frame", f.Seq()),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("handler failed", append(attrs, slog.Any("error", err))...)
				return err
			}
			logger.Debug("event handled", attrs...)
			return nil
		}
	}
}
