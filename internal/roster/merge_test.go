package roster

import (
	"testing"
)

func rosterOfThree() []StudentRecord {
	return []StudentRecord{
		{RuntimeID: "A1", AdmissionNo: "A1", Name: "Asha", GitHubRepo: "asha/project", Loading: true},
		{RuntimeID: "R7", RollNo: "R7", Name: "Ben", GitHubRepo: "ben/project", Loading: true},
		{RuntimeID: "cs-a-2", Name: "Cleo"},
	}
}

func TestMergePreservesShapeAndOrder(t *testing.T) {
	t.Parallel()

	current := rosterOfThree()
	results := []StudentRecord{
		{RuntimeID: "R7", RollNo: "R7", Name: "Ben", GitHubRepo: "ben/project", TotalCommits: 5},
	}

	merged := Merge(current, results)
	if len(merged) != len(current) {
		t.Fatalf("len(merged) = %d, want %d", len(merged), len(current))
	}
	for i := range current {
		if merged[i].RuntimeID != current[i].RuntimeID {
			t.Fatalf("RuntimeID[%d] = %q, want %q", i, merged[i].RuntimeID, current[i].RuntimeID)
		}
	}
	if merged[1].TotalCommits != 5 {
		t.Fatalf("TotalCommits[1] = %d, want 5", merged[1].TotalCommits)
	}
}

func TestMergeUnmatchedRowsKeepWaiting(t *testing.T) {
	t.Parallel()

	merged := Merge(rosterOfThree(), nil)

	if !merged[0].Loading {
		t.Fatalf("Loading[0] = false, want true (repo row still waiting)")
	}
	if merged[2].Loading {
		t.Fatalf("Loading[2] = true, want false (no repo to wait for)")
	}
}

func TestMergeMatchStrategies(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		result StudentRecord
		wantAt int
	}{
		{
			name:   "by_runtime_id",
			result: StudentRecord{RuntimeID: "A1", TotalCommits: 11},
			wantAt: 0,
		},
		{
			name:   "by_admission_no",
			result: StudentRecord{AdmissionNo: "A1", TotalCommits: 12},
			wantAt: 0,
		},
		{
			name:   "by_roll_no",
			result: StudentRecord{RollNo: "R7", TotalCommits: 13},
			wantAt: 1,
		},
		{
			name:   "by_repo_reference",
			result: StudentRecord{GitHubRepo: "ben/project", TotalCommits: 14},
			wantAt: 1,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			merged := Merge(rosterOfThree(), []StudentRecord{tc.result})
			if merged[tc.wantAt].TotalCommits != tc.result.TotalCommits {
				t.Fatalf("TotalCommits[%d] = %d, want %d", tc.wantAt, merged[tc.wantAt].TotalCommits, tc.result.TotalCommits)
			}
		})
	}
}

func TestMergeAmbiguousStrategySkipped(t *testing.T) {
	t.Parallel()

	current := []StudentRecord{
		{RuntimeID: "A1", AdmissionNo: "A1", GitHubRepo: "shared/project", Loading: true},
		{RuntimeID: "A2", AdmissionNo: "A2", GitHubRepo: "shared/project", Loading: true},
	}
	// Two candidates share the repo reference, so the repo strategy yields two
	// matches and must not be used.
	results := []StudentRecord{
		{GitHubRepo: "shared/project", TotalCommits: 3},
		{GitHubRepo: "shared/project", TotalCommits: 4},
	}

	merged := Merge(current, results)
	if merged[0].TotalCommits != 0 || merged[1].TotalCommits != 0 {
		t.Fatalf("TotalCommits = %d/%d, want 0/0 (ambiguous match skipped)", merged[0].TotalCommits, merged[1].TotalCommits)
	}
	if !merged[0].Loading || !merged[1].Loading {
		t.Fatalf("Loading = %t/%t, want true/true", merged[0].Loading, merged[1].Loading)
	}
}

func TestMergeOverlayPreservesIdentityFields(t *testing.T) {
	t.Parallel()

	current := []StudentRecord{
		{RuntimeID: "A1", AdmissionNo: "A1", RollNo: "R1", Name: "Asha", GitHubUsername: "asha", GitHubRepo: "asha/project", Loading: true},
	}
	results := []StudentRecord{
		{AdmissionNo: "A1", TotalCommits: 8, Err: ""},
	}

	merged := Merge(current, results)
	got := merged[0]
	if got.RuntimeID != "A1" || got.RollNo != "R1" || got.Name != "Asha" {
		t.Fatalf("identity fields lost: %+v", got)
	}
	if got.GitHubUsername != "asha" || got.GitHubRepo != "asha/project" {
		t.Fatalf("github fields lost: %+v", got)
	}
	if got.TotalCommits != 8 {
		t.Fatalf("TotalCommits = %d, want 8", got.TotalCommits)
	}
	if got.Loading {
		t.Fatalf("Loading = true, want false after merge")
	}
}

func TestMergeIsIdempotentOnFullResults(t *testing.T) {
	t.Parallel()

	current := rosterOfThree()
	results := []StudentRecord{
		{RuntimeID: "A1", AdmissionNo: "A1", Name: "Asha", GitHubRepo: "asha/project", TotalCommits: 2},
		{RuntimeID: "R7", RollNo: "R7", Name: "Ben", GitHubRepo: "ben/project", TotalCommits: 5},
		{RuntimeID: "cs-a-2", Name: "Cleo", Err: "No GitHub repository"},
	}

	once := Merge(current, results)
	twice := Merge(once, results)

	if len(once) != len(twice) {
		t.Fatalf("len mismatch: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("row %d differs between merges: %+v vs %+v", i, once[i], twice[i])
		}
	}
}
