package authcore

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/authcore/internal/audit"
)

// AuditEvent is one security-relevant engine outcome.
type AuditEvent = audit.Event

// AuditSink receives audit events from the background dispatcher.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers audit events in a channel, mostly for tests.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per event.
type JSONWriterSink = audit.JSONWriterSink

// SlogSink writes audit events through a structured logger.
type SlogSink = audit.SlogSink

// NewChannelSink exposes events on a channel with the given buffer.
func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

// NewJSONWriterSink writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

// NewSlogSink logs successes at info and failures at warn level.
func NewSlogSink(logger *slog.Logger) *SlogSink { return audit.NewSlogSink(logger) }
