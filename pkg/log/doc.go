// Package log provides structured logging of firmware control-channel
// events: raw frames, decoded commands and responses, coordinator state
// transitions and errors.
//
// Events are values; applications choose a sink by implementing Logger or
// by using one of the provided implementations (FileLogger for CBOR files,
// SlogAdapter for console output via log/slog, MultiLogger to combine
// sinks, NoopLogger to disable).
package log
