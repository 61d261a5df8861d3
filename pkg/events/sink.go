package events

import (
	"github.com/rs/zerolog"
)

// StartLogSink subscribes to the broker and writes one structured log line
// per event until the returned stop function is called. Stop unsubscribes
// and waits for the drain goroutine to finish.
func StartLogSink(b *Broker, logger zerolog.Logger) (stop func()) {
	sub := b.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range sub {
			entry := logger.Info().
				Str("event_id", ev.ID).
				Str("type", string(ev.Type)).
				Time("timestamp", ev.Timestamp)
			for k, v := range ev.Metadata {
				entry = entry.Str(k, v)
			}
			entry.Msg(ev.Message)
		}
	}()

	return func() {
		b.Unsubscribe(sub)
		<-done
	}
}
