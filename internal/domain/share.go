package domain

// ShareAction is the kind of share event received.
type ShareAction string

const (
	// ShareActionSend carries either text or a single stream.
	ShareActionSend ShareAction = "send"
	// ShareActionSendMultiple carries several streams.
	ShareActionSendMultiple ShareAction = "send_multiple"
)

// ShareEvent is an inbound share request.
type ShareEvent struct {
	Action   ShareAction `json:"action"`
	Text     string      `json:"text,omitempty"`
	Streams  []string    `json:"streams,omitempty"`
	MimeType string      `json:"mime_type,omitempty"`
	// LocalStreams allows streams naming files on this host. Only local
	// callers set it.
	LocalStreams bool `json:"-"`
}

// OutcomeStatus is the terminal state of one ingestion attempt.
type OutcomeStatus string

const (
	OutcomeSaved   OutcomeStatus = "saved"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// ShareOutcome is reported to the user after every attempt.
type ShareOutcome struct {
	Status      OutcomeStatus `json:"status"`
	Message     string        `json:"message"`
	BookmarkIDs []int64       `json:"bookmark_ids,omitempty"`
	Author      string        `json:"author,omitempty"`
	TweetID     TweetID       `json:"tweet_id,omitempty"`
}
