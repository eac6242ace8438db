package crawler

import "errors"

// Failure classes used across the sync pipeline. Callers classify with
// errors.Is; concrete errors wrap one of these with context.
var (
	// ErrTransport marks network or HTTP-level failures.
	ErrTransport = errors.New("transport error")
	// ErrUnexpectedStatus marks a non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrStructuralMismatch marks a list selector that matched nothing.
	ErrStructuralMismatch = errors.New("structural mismatch")
	// ErrBotDetected marks a recognised block page.
	ErrBotDetected = errors.New("bot detected")
	// ErrParseFailure marks an article whose expected content is missing.
	ErrParseFailure = errors.New("parse failure")
	// ErrPublishFailure marks a rejected or failed document upload.
	ErrPublishFailure = errors.New("publish failure")
)
