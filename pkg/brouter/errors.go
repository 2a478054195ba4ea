package brouter

import (
	"fmt"
	"net/http"
)

// UpstreamRequestError is a failed routing request: a non-200 status, or a
// transport failure (StatusCode 0, Err set)
type UpstreamRequestError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("brouter request %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("brouter request %s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

func (e *UpstreamRequestError) Unwrap() error { return e.Err }

// ProfileMissing reports the engine's answer for an unknown profile
func (e *UpstreamRequestError) ProfileMissing() bool {
	return e.StatusCode == http.StatusInternalServerError
}

// ProfileUploadError is a failed profile upload, or an upload the engine
// rejected as invalid
type ProfileUploadError struct {
	Profile    string
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProfileUploadError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("uploading profile %s to %s: %v", e.Profile, e.URL, e.Err)
	case e.StatusCode != http.StatusOK:
		return fmt.Sprintf("uploading profile %s to %s: HTTP %d: %s", e.Profile, e.URL, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("profile %s rejected by engine: %s", e.Profile, e.Message)
	}
}

func (e *ProfileUploadError) Unwrap() error { return e.Err }

// MalformedResponseError is an engine answer from which no itinerary can
// be assembled
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed brouter response: %s: %v", e.Reason, e.Err)
	}
	return "malformed brouter response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
