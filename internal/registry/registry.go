// Package registry holds the authoritative mapping from page identifier to
// build state. It is the single shared mutable resource of the coordinator:
// every status transition, insert and delete goes through one mutex, so a
// partially-updated Entry is never observed by a concurrent reader.
package registry

import (
	"sort"
	"sync"
	"time"
)

// TouchResult classifies the outcome of a liveness ping against the registry.
type TouchResult int

const (
	// TouchUnknown means no Entry exists for the page (evicted or never built).
	TouchUnknown TouchResult = iota
	// TouchIgnored means the Entry exists but is not Built yet; mid-build
	// pages are tracked by the build cycle itself.
	TouchIgnored
	// TouchRecorded means the ping refreshed LastActiveAt and the recency window.
	TouchRecorded
)

// Registry owns all Entries plus the single-slot recency window. The zero
// value is not usable; construct with New.
type Registry struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	mostRecent string
}

func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Lookup returns a copy of the Entry for pageID.
func (r *Registry) Lookup(pageID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[pageID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Insert registers a new Entry in Added state. It returns false without
// mutating anything if the page is already tracked, so callers racing to
// register the same page converge on one Entry.
func (r *Registry) Insert(e Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[e.PageID]; exists {
		return false
	}
	e.Status = StatusAdded
	e.LastActiveAt = time.Time{}
	r.entries[e.PageID] = &e
	return true
}

// Len returns the number of tracked pages.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Pages returns the sorted identifiers of all tracked pages.
func (r *Registry) Pages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	pages := make([]string, 0, len(r.entries))
	for id := range r.entries {
		pages = append(pages, id)
	}
	sort.Strings(pages)
	return pages
}

// ClaimAdded atomically transitions every Added Entry to Building and returns
// copies of the claimed Entries. Called once per compilation pass start.
func (r *Registry) ClaimAdded() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var claimed []Entry
	for _, e := range r.entries {
		if e.Status == StatusAdded {
			e.Status = StatusBuilding
			claimed = append(claimed, *e)
		}
	}
	sort.Slice(claimed, func(i, j int) bool { return claimed[i].PageID < claimed[j].PageID })
	return claimed
}

// MarkBuilt transitions the named pages from Building to Built and stamps
// LastActiveAt. Pages evicted mid-pass are skipped.
func (r *Registry) MarkBuilt(pageIDs []string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range pageIDs {
		e, ok := r.entries[id]
		if !ok || e.Status != StatusBuilding {
			continue
		}
		e.Status = StatusBuilt
		e.LastActiveAt = now
	}
}

// Touch records a liveness ping for pageID. Only Built pages refresh
// LastActiveAt and take over the recency window; the window is a single slot,
// so any prior holder is simply replaced.
func (r *Registry) Touch(pageID string, now time.Time) TouchResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[pageID]
	if !ok {
		return TouchUnknown
	}
	switch e.Status {
	case StatusAdded, StatusBuilding:
		return TouchIgnored
	case StatusBuilt:
		e.LastActiveAt = now
		r.mostRecent = pageID
		return TouchRecorded
	}
	return TouchIgnored
}

// MostRecent returns the page currently holding the recency window, or ""
// when nothing has been pinged yet.
func (r *Registry) MostRecent() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mostRecent
}

// SweepIdle deletes every Built Entry whose LastActiveAt is older than maxAge,
// except the recency-window page. Added/Building entries are never touched
// regardless of age. The deletions happen in one atomic pass; the sorted ids
// of the evicted pages are returned.
func (r *Registry) SweepIdle(now time.Time, maxAge time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for id, e := range r.entries {
		switch e.Status {
		case StatusAdded, StatusBuilding:
			continue
		case StatusBuilt:
		}
		if id == r.mostRecent {
			continue
		}
		if now.Sub(e.LastActiveAt) <= maxAge {
			continue
		}
		evicted = append(evicted, id)
	}
	for _, id := range evicted {
		delete(r.entries, id)
	}
	sort.Strings(evicted)
	return evicted
}
