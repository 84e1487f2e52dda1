package storage

import "time"

// QueueEntry is one pending repost: the originating post and the matched
// source images it resolved to.
type QueueEntry struct {
	ID         int64
	PostURL    string
	ImageURLs  []string
	EnqueuedAt time.Time
}

// PostImage pairs a matched source image with the artist page it was
// resolved from. The artist URL drives tag annotation during the repost.
type PostImage struct {
	ImageURL  string
	ArtistURL string
}

// HistoryEntry records one reposted source image and when it was recorded.
type HistoryEntry struct {
	ImageURL   string
	RecordedAt time.Time
}
