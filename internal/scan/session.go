package scan

import (
	"time"

	"github.com/google/uuid"
)

// Session holds the mutable state of one preflight scan. It is owned by the
// runner and mutated only between suspension points, which the single
// in-flight request cap makes safe without locking.
type Session struct {
	id        string
	startedAt time.Time

	// workingSet maps image URL to the post URL that claimed it, accumulated
	// from preflight responses.
	workingSet map[string]string
	// seen holds every post image URL extracted so far, for the cheap
	// same-session rejection check before any network work.
	seen map[string]struct{}

	enqueued int
	accepted int
	rejected map[Rejection]int
}

// NewSession creates a fresh session with a correlation ID.
func NewSession() *Session {
	return &Session{
		id:         uuid.NewString(),
		startedAt:  time.Now(),
		workingSet: make(map[string]string),
		seen:       make(map[string]struct{}),
		rejected:   make(map[Rejection]int),
	}
}

// ID returns the session correlation ID.
func (s *Session) ID() string {
	return s.id
}

// Seen reports whether an image URL was already extracted this session.
func (s *Session) Seen(imageURL string) bool {
	_, ok := s.seen[imageURL]
	return ok
}

// MarkSeen records an extracted image URL.
func (s *Session) MarkSeen(imageURL string) {
	s.seen[imageURL] = struct{}{}
}

// WorkingSetSnapshot copies the current working set. The copy is what gets
// attached to an outgoing request, so later merges do not mutate a request
// already in flight.
func (s *Session) WorkingSetSnapshot() map[string]string {
	snapshot := make(map[string]string, len(s.workingSet))
	for imageURL, postURL := range s.workingSet {
		snapshot[imageURL] = postURL
	}
	return snapshot
}

// MergeWorkingSet folds response claims into the session working set.
func (s *Session) MergeWorkingSet(claims map[string]string) {
	for imageURL, postURL := range claims {
		s.workingSet[imageURL] = postURL
	}
}

// Report summarizes a finished session.
type Report struct {
	SessionID string
	Elapsed   time.Duration
	Enqueued  int
	Accepted  int
	Rejected  map[Rejection]int
}

// Report captures the session counters and elapsed time.
func (s *Session) Report() Report {
	rejected := make(map[Rejection]int, len(s.rejected))
	for reason, count := range s.rejected {
		rejected[reason] = count
	}
	return Report{
		SessionID: s.id,
		Elapsed:   time.Since(s.startedAt),
		Enqueued:  s.enqueued,
		Accepted:  s.accepted,
		Rejected:  rejected,
	}
}

func (s *Session) countRejection(reason Rejection) {
	s.rejected[reason]++
}
