package ai

import "errors"

// Summarization failures never fail the call; the dispatcher logs them and
// ranks the vehicle without a summary.
var (
	ErrProviderUnavailable = errors.New("summary provider unavailable")
	ErrInferenceTimeout    = errors.New("summary inference timed out")
	ErrInvalidResponse     = errors.New("summary provider returned an unusable reply")
	ErrEmptyTranscript     = errors.New("call transcript is empty")
)
