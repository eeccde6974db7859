package registry

import (
	"strings"
	"time"
)

// Status represents the build lifecycle state of a tracked page.
type Status string

const (
	StatusAdded    Status = "added"    // Registered, waiting to be claimed by a pass
	StatusBuilding Status = "building" // Claimed by the current compilation pass
	StatusBuilt    Status = "built"    // Compiled artifact exists
)

// Valid reports whether s is one of the defined states.
func (s Status) Valid() bool {
	switch s {
	case StatusAdded, StatusBuilding, StatusBuilt:
		return true
	}
	return false
}

// Entry is the tracked build state for one page. Status only ever advances
// Added -> Building -> Built; eviction deletes the Entry outright.
type Entry struct {
	PageID       string
	TargetName   string
	Request      string
	ArtifactPath string
	Status       Status
	LastActiveAt time.Time // zero until the first Built transition
}

// NormalizePageID canonicalizes a raw page identifier. A trailing "/index"
// segment collapses to "/", so "/foo/index" and "/foo/" denote the same page.
// Normalization is idempotent.
func NormalizePageID(raw string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if strings.HasSuffix(p, "/index") {
		p = strings.TrimSuffix(p, "index")
	}
	return p
}
