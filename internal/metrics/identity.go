package metrics

import (
	"net/url"
	"strings"
)

// RepoIdentity is the canonical (owner, repo) pair for one remote repository,
// independent of how it was referenced textually.
type RepoIdentity struct {
	Owner string
	Repo  string
}

// Key returns the canonical "owner/repo" cache key fragment.
func (id RepoIdentity) Key() string {
	return id.Owner + "/" + id.Repo
}

// Resolve parses a free-form repository reference into a canonical identity.
// Accepted shapes: a full URL, owner/repo shorthand, either with a trailing
// ".git". Malformed references resolve to ok=false, never an error: a bad
// reference is data, not a defect.
func Resolve(reference string) (RepoIdentity, bool) {
	trimmed := strings.TrimSpace(reference)
	trimmed = strings.TrimSuffix(trimmed, ".git")
	if trimmed == "" {
		return RepoIdentity{}, false
	}

	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "https://github.com/" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return RepoIdentity{}, false
	}

	var segments []string
	for _, segment := range strings.Split(parsed.Path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	if len(segments) < 2 {
		return RepoIdentity{}, false
	}

	return RepoIdentity{Owner: segments[0], Repo: segments[1]}, true
}
