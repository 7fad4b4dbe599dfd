package fluent

import (
	"time"

	"github.com/kstaniek/fluentgate/internal/event"
)

// Frame is the codec's internal post-decode unit: one normalized
// (tag, timestamp, record) triple. A single wire message expands into one
// or more frames (Forward/PackedForward); the event builder turns each
// frame into one event.Event.
type Frame struct {
	Tag       string
	Timestamp time.Time
	Record    map[string]event.Value
}
