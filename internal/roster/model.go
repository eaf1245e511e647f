package roster

import (
	"github.com/cam3ron2/gitroster/internal/githubapi"
)

// SourceRow is one raw roster row as supplied by the roster file, before
// seeding assigns runtime identity.
type SourceRow struct {
	AdmissionNo    string `yaml:"admission_no"`
	RollNo         string `yaml:"roll_no"`
	Name           string `yaml:"name"`
	GitHubUsername string `yaml:"github_username"`
	GitHubRepo     string `yaml:"github_repo"`
}

// StudentRecord is one seeded roster row with its mutable metrics overlay.
// RuntimeID is assigned once at seeding time and never changes; it is the
// primary matching key for all merges.
type StudentRecord struct {
	RuntimeID      string                    `json:"runtimeId"`
	AdmissionNo    string                    `json:"admissionNo"`
	RollNo         string                    `json:"rollNo"`
	Name           string                    `json:"name"`
	GitHubUsername string                    `json:"githubUsername,omitempty"`
	GitHubRepo     string                    `json:"githubRepo"`
	TotalCommits   int                       `json:"totalCommits"`
	RecentCommit   *githubapi.RecentCommit   `json:"recentCommit"`
	Repository     *githubapi.RepositoryInfo `json:"repositoryInfo"`
	TotalLines     *int64                    `json:"totalLinesOfCode"`
	Loading        bool                      `json:"loading"`
	Err            string                    `json:"error,omitempty"`
}

// HasRepo reports whether the row carries a repository reference.
func (r StudentRecord) HasRepo() bool {
	return r.GitHubRepo != ""
}

// Roster is the static roster source: one section with its student rows.
type Roster struct {
	Section  string      `yaml:"section"`
	Students []SourceRow `yaml:"students"`
}
