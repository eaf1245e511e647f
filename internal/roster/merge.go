package roster

// Merge reconciles partial or complete per-student results against the
// canonical roster. The roster's shape and order are authoritative: the
// output has the same length, the same runtime id set, and the same order as
// the input roster, regardless of what the results contain.
//
// Matching tries one strategy at a time: runtime id, admission number, roll
// number, exact repository reference. A strategy wins only when it yields
// exactly one candidate; ambiguous strategies are skipped. Runtime id is
// first because it is guaranteed unique, while raw repository references may
// coincidentally collide across students sharing an account.
func Merge(current []StudentRecord, results []StudentRecord) []StudentRecord {
	merged := make([]StudentRecord, 0, len(current))
	for _, original := range current {
		result, found := matchResult(original, results)
		if !found {
			// Still waiting: the row's batch has not completed yet.
			original.Loading = original.HasRepo()
			merged = append(merged, original)
			continue
		}
		merged = append(merged, overlay(original, result))
	}
	return merged
}

type matchStrategy func(original, candidate StudentRecord) bool

var matchStrategies = []matchStrategy{
	func(original, candidate StudentRecord) bool {
		return original.RuntimeID != "" && candidate.RuntimeID != "" && original.RuntimeID == candidate.RuntimeID
	},
	func(original, candidate StudentRecord) bool {
		return original.AdmissionNo != "" && candidate.AdmissionNo != "" && original.AdmissionNo == candidate.AdmissionNo
	},
	func(original, candidate StudentRecord) bool {
		return original.RollNo != "" && candidate.RollNo != "" && original.RollNo == candidate.RollNo
	},
	func(original, candidate StudentRecord) bool {
		return original.GitHubRepo != "" && candidate.GitHubRepo != "" && original.GitHubRepo == candidate.GitHubRepo
	},
}

func matchResult(original StudentRecord, results []StudentRecord) (StudentRecord, bool) {
	for _, strategy := range matchStrategies {
		var candidate StudentRecord
		count := 0
		for _, result := range results {
			if strategy(original, result) {
				candidate = result
				count++
				if count > 1 {
					break
				}
			}
		}
		if count == 1 {
			return candidate, true
		}
	}
	return StudentRecord{}, false
}

// overlay replaces the original row with the result while preserving
// original-only fields the result did not carry.
func overlay(original, result StudentRecord) StudentRecord {
	merged := result
	if merged.RuntimeID == "" {
		merged.RuntimeID = original.RuntimeID
	}
	if merged.AdmissionNo == "" {
		merged.AdmissionNo = original.AdmissionNo
	}
	if merged.RollNo == "" {
		merged.RollNo = original.RollNo
	}
	if merged.Name == "" {
		merged.Name = original.Name
	}
	if merged.GitHubUsername == "" {
		merged.GitHubUsername = original.GitHubUsername
	}
	if merged.GitHubRepo == "" {
		merged.GitHubRepo = original.GitHubRepo
	}
	return merged
}
