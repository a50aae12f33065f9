package domain

import "errors"

// Domain errors.
var (
	// ErrBookmarkNotFound is returned when a bookmark cannot be found.
	ErrBookmarkNotFound = errors.New("bookmark not found")

	// ErrInvalidField is returned when an update targets an unknown column.
	ErrInvalidField = errors.New("invalid bookmark field")

	// ErrUnsupportedShare is returned for share actions the pipeline does not handle.
	ErrUnsupportedShare = errors.New("unsupported share action")

	// ErrLocalStream is returned when a remote share names a local file.
	ErrLocalStream = errors.New("local file streams are not accepted")

	// ErrNoStatusURL is returned when a text share contains no post URL.
	ErrNoStatusURL = errors.New("no X/Twitter URL found")

	// ErrNoMediaResolved is returned when every strategy came back empty.
	ErrNoMediaResolved = errors.New("no media URLs found")

	// ErrDownloadFailed is returned when a media download fails.
	ErrDownloadFailed = errors.New("media download failed")

	// ErrStorageFull is returned when there is insufficient storage space.
	ErrStorageFull = errors.New("insufficient storage space")

	// ErrGateHeld is returned when another ingestion holds the gate.
	ErrGateHeld = errors.New("another save is in progress")

	// ErrBrowserUnavailable is returned when no rendering browser is configured.
	ErrBrowserUnavailable = errors.New("rendering browser unavailable")
)

// ShareError wraps an error with the ingestion step that failed.
type ShareError struct {
	TweetID TweetID
	Op      string
	Err     error
}

func (e *ShareError) Error() string {
	if e.TweetID != 0 {
		return e.Op + " [" + e.TweetID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *ShareError) Unwrap() error {
	return e.Err
}

// NewShareError creates a new ShareError.
func NewShareError(tweetID TweetID, op string, err error) *ShareError {
	return &ShareError{
		TweetID: tweetID,
		Op:      op,
		Err:     err,
	}
}
