package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes control-channel events to an slog.Logger. Useful
// during development to see firmware traffic on the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter that writes to the given logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Control != nil:
		attrs = append(attrs, slog.String("msg", event.Control.MessageKind))
		if event.Control.TransactionID != 0 {
			attrs = append(attrs,
				slog.Uint64("transaction_id", uint64(event.Control.TransactionID)))
		}
		if event.Control.PubSubID != 0 {
			attrs = append(attrs,
				slog.Uint64("pub_sub_id", uint64(event.Control.PubSubID)))
		}
		if event.Control.Status != 0 {
			attrs = append(attrs,
				slog.Uint64("status", uint64(event.Control.Status)))
		}
	case event.State != nil:
		attrs = append(attrs,
			slog.String("old_state", event.State.OldState),
			slog.String("new_state", event.State.NewState),
		)
		if event.State.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.State.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "control", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
