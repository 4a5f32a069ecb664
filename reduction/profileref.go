package reduction

import (
	"fmt"
	"strings"
)

// ProfileRef identifies a reduction profile within a database, optionally
// pinned to a version. Both `db:profile` and `db@version:profile` are
// accepted (Open Question decision 1).
type ProfileRef struct {
	Database string
	Version  string // empty means "latest"
	Profile  string
}

// ParseProfileRef normalizes either accepted form to a ProfileRef.
func ParseProfileRef(s string) (ProfileRef, error) {
	colon := strings.LastIndex(s, ":")
	if colon < 0 {
		return ProfileRef{}, fmt.Errorf("reduction: profile reference %q missing ':profile' suffix", s)
	}
	head, profile := s[:colon], s[colon+1:]
	if profile == "" {
		return ProfileRef{}, fmt.Errorf("reduction: profile reference %q has an empty profile name", s)
	}

	if at := strings.Index(head, "@"); at >= 0 {
		db, version := head[:at], head[at+1:]
		if db == "" || version == "" {
			return ProfileRef{}, fmt.Errorf("reduction: profile reference %q has an empty database or version", s)
		}
		return ProfileRef{Database: db, Version: version, Profile: profile}, nil
	}

	if head == "" {
		return ProfileRef{}, fmt.Errorf("reduction: profile reference %q has an empty database", s)
	}
	return ProfileRef{Database: head, Profile: profile}, nil
}

// String renders the ref back to its canonical `db@version:profile` form,
// or `db:profile` when no version is pinned.
func (r ProfileRef) String() string {
	if r.Version == "" {
		return r.Database + ":" + r.Profile
	}
	return r.Database + "@" + r.Version + ":" + r.Profile
}
