package main

import (
	"context"
	"log/slog"

	"github.com/kstaniek/fluentgate/internal/event"
	"github.com/kstaniek/fluentgate/internal/metrics"
	"github.com/kstaniek/fluentgate/internal/sink"
)

// initSink builds the downstream event sink. The actual downstream event
// pipeline is an external collaborator: this default delivery function
// logs each event at Debug level so the binary is runnable and observable
// standalone; a real deployment wires deliver to whatever ships events
// onward (a queue, another forwarder, a storage backend).
func initSink(cfg *appConfig, l *slog.Logger) *sink.Sink {
	policy := sink.PolicyBlock
	if cfg.sinkPolicy == "drop" {
		policy = sink.PolicyDrop
	}

	deliver := func(e event.Event) error {
		l.Debug("event_received", "tag", e.Tag, "host", e.Host, "timestamp", e.Timestamp, "fields", len(e.Record))
		return nil
	}

	hooks := sink.Hooks{
		OnDrop:  metrics.IncSinkDropped,
		OnError: func(error) { metrics.IncSinkSendError() },
	}

	l.Info("sink_config", "policy", cfg.sinkPolicy, "buffer", cfg.sinkBuffer)
	return sink.New(context.Background(), cfg.sinkBuffer, deliver, policy, hooks)
}
