package events

import "time"

// PassStarted is emitted when the batcher claims pending entries and hands
// them to the compiler. One event per compilation pass.
type PassStarted struct {
	PassID    string
	Pages     []string
	StartedAt time.Time
}

// PassCompleted is emitted after the compiler returns for a pass. Err is nil
// on success; on failure every waiter on any page of the pass already received
// the same build error before this event is published.
type PassCompleted struct {
	PassID      string
	Pages       []string
	Err         error
	CompletedAt time.Time
}

// PagesEvicted is emitted by the sweeper after an atomic eviction pass, once
// per sweep that removed anything.
type PagesEvicted struct {
	Pages     []string
	EvictedAt time.Time
}
