package repository

import (
	"talaria/hashid"
	"talaria/procstate"
)

// ResumeChunking looks up a not-yet-complete chunk operation for source
// against the manifest identity a caller is about to continue building,
// and reports which chunk hashes have already landed in the chunk store so
// the caller can skip re-packing and re-persisting them (spec §4.K: "a
// caller decides to resume iff manifest_hash and manifest_version match,
// otherwise the stale state is discarded").
func (r *Repository) ResumeChunking(source string, manifestHash hashid.Hash, manifestVersion string) (*procstate.State, error) {
	return r.ProcState.CheckResumable(procstate.KindChunk, source, manifestHash, manifestVersion)
}
