package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/fluentgate/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"events_received", snap.EventsReceived,
					"entries_decoded", snap.EntriesDecoded,
					"sink_dropped", snap.SinkDropped,
					"sink_send_errors", snap.SinkSendErrors,
					"connections_accepted", snap.ConnectionsAccepted,
					"connections_rejected", snap.ConnectionsRejected,
					"active_connections", snap.ActiveConnections,
					"decode_errors", snap.DecodeErrors,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
