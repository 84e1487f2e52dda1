package msg

import (
	"errors"
	"time"
)

// Response is embedded in every reply. ErrorMessage is nil on success and
// holds a human-readable description when the operation was not performed.
type Response struct {
	ErrorMessage *string `json:"errorMessage"`
}

// SetError records a failure message on the response.
func (r *Response) SetError(message string) {
	r.ErrorMessage = &message
}

// Err converts a non-nil ErrorMessage into an error.
func (r *Response) Err() error {
	if r.ErrorMessage == nil {
		return nil
	}
	return errors.New(*r.ErrorMessage)
}

// PostImage pairs an image URL with the artist page it resolved from.
type PostImage struct {
	ImageURL  string `json:"imageUrl"`
	ArtistURL string `json:"artistUrl"`
}

// PreflightOnPostRequest submits one feed post for matching and dedup.
// WorkingSet carries the scan session's image-to-post claims as of dispatch.
type PreflightOnPostRequest struct {
	PostURL       string            `json:"postUrl"`
	PostImageURLs []string          `json:"postImageUrls"`
	Links         []string          `json:"links"`
	RawText       string            `json:"rawText"`
	WorkingSet    map[string]string `json:"workingSet"`
}

// PreflightOnPostResponse returns the accepted image URLs, or none when the
// post was rejected, plus the working-set claims recorded while checking.
// Fatal is set when the failure must end the scan session, which happens on
// working-set consistency violations.
type PreflightOnPostResponse struct {
	Response
	ImageURLs  []string          `json:"imageUrls"`
	WorkingSet map[string]string `json:"workingSet"`
	Fatal      bool              `json:"fatal"`
}

// QueueForRebloggingRequest appends a post to the pending repost queue.
type QueueForRebloggingRequest struct {
	PostURL   string   `json:"postUrl"`
	ImageURLs []string `json:"imageUrls"`
}

// QueueForRebloggingResponse acknowledges the enqueue.
type QueueForRebloggingResponse struct {
	Response
}

// DequeueForRebloggingRequest pops the queue head after a confirmed repost.
type DequeueForRebloggingRequest struct {
	PostURL string `json:"postUrl"`
}

// DequeueForRebloggingResponse acknowledges the removal.
type DequeueForRebloggingResponse struct {
	Response
	Removed bool `json:"removed"`
}

// QueueListRequest lists pending queue entries.
type QueueListRequest struct{}

// QueueEntry is one pending repost in FIFO order.
type QueueEntry struct {
	PostURL    string    `json:"postUrl"`
	ImageURLs  []string  `json:"imageUrls"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// QueueListResponse carries the queue contents.
type QueueListResponse struct {
	Response
	Entries []QueueEntry `json:"entries"`
}

// QueueClearRequest removes every pending entry.
type QueueClearRequest struct{}

// QueueClearResponse reports how many entries were removed.
type QueueClearResponse struct {
	Response
	Removed int64 `json:"removed"`
}

// LoadPostImagesRequest fetches the post-to-images map.
type LoadPostImagesRequest struct{}

// LoadPostImagesResponse carries the full map.
type LoadPostImagesResponse struct {
	Response
	Posts map[string][]PostImage `json:"posts"`
}

// ClearPostImagesRequest drops the post-to-images map.
type ClearPostImagesRequest struct{}

// ClearPostImagesResponse reports how many posts were recorded.
type ClearPostImagesResponse struct {
	Response
	Removed int64 `json:"removed"`
}

// HistoryListRequest lists completed-repost history entries.
type HistoryListRequest struct{}

// HistoryEntry is one recorded repost.
type HistoryEntry struct {
	ImageURL   string    `json:"imageUrl"`
	RecordedAt time.Time `json:"recordedAt"`
}

// HistoryListResponse carries history entries newest first.
type HistoryListResponse struct {
	Response
	Entries []HistoryEntry `json:"entries"`
}

// ScanStartRequest begins a preflight scan session.
type ScanStartRequest struct{}

// ScanStartResponse indicates whether a session was started.
type ScanStartResponse struct {
	Response
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// ScanStopRequest cancels the running scan session.
type ScanStopRequest struct{}

// ScanStopResponse indicates whether a session was stopped.
type ScanStopResponse struct {
	Response
	Stopped bool `json:"stopped"`
}

// ReblogRequest executes the repost for the queue head.
type ReblogRequest struct{}

// ReblogResponse reports the outcome of one repost attempt.
type ReblogResponse struct {
	Response
	PostURL string `json:"postUrl"`
	Done    bool   `json:"done"`
	Message string `json:"message"`
}

// StatusRequest fetches combined agent status.
type StatusRequest struct{}

// StatusResponse summarizes agent and store state.
type StatusResponse struct {
	Response
	Running      bool   `json:"running"`
	Scanning     bool   `json:"scanning"`
	QueueLength  int    `json:"queueLength"`
	HistoryCount int    `json:"historyCount"`
	PostMapCount int    `json:"postMapCount"`
	UsageBytes   int64  `json:"usageBytes"`
	QuotaBytes   int64  `json:"quotaBytes"`
	DBPath       string `json:"dbPath"`
	SocketPath   string `json:"socketPath"`
	PID          int    `json:"pid"`
}
