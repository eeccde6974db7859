package errors

// Constructors for the error taxonomy used across the coordinator. Keeping
// them here means call sites never spell out category/severity pairs by hand.

// ResolutionError indicates a page identifier has no matching source file.
// Surfaced to the caller of EnsurePage, never retried.
func ResolutionError(page string) *OnDemandError {
	return New(CategoryResolution, SeverityError, "page has no matching source").
		WithContext("page", page)
}

// BuildError indicates a compilation pass failed. Every waiter on any page in
// that pass receives the same error.
func BuildError(err error, passID string) *OnDemandError {
	e := Wrap(err, CategoryBuild, SeverityError, "compilation pass failed").
		WithContext("pass_id", passID)
	e.Retryable = true
	return e
}

// ProtocolError indicates a malformed or unrecognized control-channel
// message. Scoped to the single message, never tears down the connection.
func ProtocolError(err error, message string) *OnDemandError {
	return Wrap(err, CategoryProtocol, SeverityWarning, message)
}

// ServerLifecycleError indicates the control-channel server failed to bind or
// close.
func ServerLifecycleError(err error, message string) *OnDemandError {
	return Wrap(err, CategoryServer, SeverityError, message)
}

// ConfigError indicates invalid or unloadable configuration.
func ConfigError(message string) *OnDemandError {
	return New(CategoryConfig, SeverityFatal, message)
}
