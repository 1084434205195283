// Package pointkey issues the unique, issuance-ordered keys that identify
// point transactions.
package pointkey

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Generator issues point keys. Keys never repeat and sort by issuance order,
// which the allocation engine relies on for tie-breaks.
type Generator interface {
	Next() string
}

// TimeSequence generates keys of the form PT{unixMillis}{seq}, where seq is
// a zero-padded process-wide counter. The millisecond prefix keeps keys
// ordered across restarts; the fixed-width counter orders and disambiguates
// keys issued within the same millisecond.
type TimeSequence struct {
	counter atomic.Int64
	now     func() time.Time
}

// NewTimeSequence returns a generator backed by the wall clock.
func NewTimeSequence() *TimeSequence {
	return &TimeSequence{now: time.Now}
}

func (g *TimeSequence) Next() string {
	millis := g.now().UnixMilli()
	seq := g.counter.Add(1) % 1000000
	return fmt.Sprintf("PT%013d%06d", millis, seq)
}
