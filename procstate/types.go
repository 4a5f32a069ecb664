// Package procstate tracks durable, resumable progress for long-running
// operations (download, chunk, reduce) so a crash or restart can pick up
// where it left off instead of starting over (spec §3, §4.K).
package procstate

import (
	"time"

	"talaria/hashid"
)

// Kind names the class of long-running operation a ProcessingState tracks.
type Kind string

const (
	KindDownload Kind = "Download"
	KindChunk    Kind = "Chunk"
	KindReduce   Kind = "Reduce"
)

// DefaultExpiry is how long a processing state stays resumable past its
// last update before it is eligible for cleanup (spec §4.K: "expires_at
// defaults to 7 days beyond updated_at").
const DefaultExpiry = 7 * 24 * time.Hour

// State is the durable record of one in-flight (or finished, until
// cleaned up) operation (spec §3 "Processing state").
type State struct {
	OperationID     string
	Kind            Kind
	ManifestHash    hashid.Hash
	ManifestVersion string
	TotalChunks     int
	CompletedChunks []hashid.Hash
	SourceInfo      string
	StartedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
	Done            bool
}

// Remaining reports how many chunks have not yet been recorded complete.
func (s State) Remaining() int {
	r := s.TotalChunks - len(s.CompletedChunks)
	if r < 0 {
		return 0
	}
	return r
}

// IsCompletedChunk reports whether h is already in CompletedChunks, so a
// resumed operation can skip work it already did.
func (s State) IsCompletedChunk(h hashid.Hash) bool {
	for _, c := range s.CompletedChunks {
		if c == h {
			return true
		}
	}
	return false
}

// Expired reports whether s is past its expiry as of now.
func (s State) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// sourceKey identifies the "one current record per operation kind per
// source" slot a new StartProcessing call occupies (spec §3: "one 'current'
// record per operation kind per source").
func sourceKey(kind Kind, source string) string {
	return string(kind) + "\x00" + source
}
