package roster

import (
	"strings"
	"testing"
)

func TestLoadParsesRosterYAML(t *testing.T) {
	t.Parallel()

	source := `
section: cs-a
students:
  - admission_no: A100
    roll_no: R1
    name: Asha
    github_username: asha
    github_repo: https://github.com/asha/project
  - name: Cleo
`

	loaded, err := Load(strings.NewReader(source))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Section != "cs-a" {
		t.Fatalf("Section = %q, want %q", loaded.Section, "cs-a")
	}
	if len(loaded.Students) != 2 {
		t.Fatalf("len(Students) = %d, want 2", len(loaded.Students))
	}
	if loaded.Students[0].AdmissionNo != "A100" {
		t.Fatalf("AdmissionNo = %q, want %q", loaded.Students[0].AdmissionNo, "A100")
	}
	if loaded.Students[0].GitHubRepo != "https://github.com/asha/project" {
		t.Fatalf("GitHubRepo = %q", loaded.Students[0].GitHubRepo)
	}
	if loaded.Students[1].Name != "Cleo" {
		t.Fatalf("Name = %q, want %q", loaded.Students[1].Name, "Cleo")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	source := `
section: cs-a
students:
  - name: Asha
    unexpected_field: true
`

	if _, err := Load(strings.NewReader(source)); err == nil {
		t.Fatalf("Load() error = nil, want unknown-field error")
	}
}

func TestLoadNilReader(t *testing.T) {
	t.Parallel()

	if _, err := Load(nil); err == nil {
		t.Fatalf("Load(nil) error = nil, want error")
	}
}
