// Package notify relays status texts to the outside world. Every notifier is
// best effort: failures are logged and never returned to the caller.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/scriptloop/scriptloop/internal/model"
)

// Log writes notifications into the structured log.
type Log struct{}

func (Log) Notify(ctx context.Context, text string) {
	slog.InfoContext(ctx, "notification", "text", text)
}

// Multi calls each notifier in order.
type Multi []model.Notifier

func (m Multi) Notify(ctx context.Context, text string) {
	for _, n := range m {
		n.Notify(ctx, text)
	}
}

func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		if closer, ok := n.(model.NotifyCloser); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

// FromConfig returns Log notifier if telegram is disabled, Log followed by
// Telegram otherwise.
func FromConfig(cfg model.Telegram) (model.Notifier, error) {
	if !cfg.Enabled {
		return Log{}, nil
	}
	tg, err := NewTelegram(cfg.APIURL, cfg.Token, cfg.ChatID)
	if err != nil {
		return nil, fmt.Errorf("initializing telegram: %w", err)
	}
	return Multi{Log{}, tg}, nil
}
