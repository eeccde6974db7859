package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPage       = "page"
	KeyPassID     = "pass_id"
	KeyStatus     = "status"
	KeyTarget     = "target"
	KeyArtifact   = "artifact"
	KeyDurationMS = "duration_ms"
	KeyEvicted    = "evicted"
	KeyWaiters    = "waiters"
	KeyPort       = "port"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Page(p string) slog.Attr          { return slog.String(KeyPage, p) }
func PassID(id string) slog.Attr       { return slog.String(KeyPassID, id) }
func Status(s string) slog.Attr        { return slog.String(KeyStatus, s) }
func Target(name string) slog.Attr     { return slog.String(KeyTarget, name) }
func Artifact(path string) slog.Attr   { return slog.String(KeyArtifact, path) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Evicted(n int) slog.Attr          { return slog.Int(KeyEvicted, n) }
func Waiters(n int) slog.Attr          { return slog.Int(KeyWaiters, n) }
func Port(p int) slog.Attr             { return slog.Int(KeyPort, p) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
