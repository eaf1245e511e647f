package roster

import (
	"strconv"
)

// maxDuplicateExamples caps how many duplicate keys are surfaced to callers.
const maxDuplicateExamples = 10

// Seed assigns runtime identity to raw roster rows and drops duplicates.
// The runtime id prefers admission number, then roll number, then a
// positional fallback. Rows are deduplicated twice: by exact runtime id
// collision, then by a softer first-non-empty key (admission number, roll
// number, repository reference, name) to catch source-data duplicates. The
// first occurrence always wins; every dropped key, from either pass, is
// returned for a user-facing warning, capped to a few examples.
func Seed(section string, rows []SourceRow) ([]StudentRecord, []string) {
	var duplicateKeys []string
	recordDuplicate := func(key string) {
		if len(duplicateKeys) < maxDuplicateExamples {
			duplicateKeys = append(duplicateKeys, key)
		}
	}

	seeded := make([]StudentRecord, 0, len(rows))
	seenIDs := make(map[string]struct{}, len(rows))
	for idx, row := range rows {
		runtimeID := row.AdmissionNo
		if runtimeID == "" {
			runtimeID = row.RollNo
		}
		if runtimeID == "" {
			runtimeID = section + "-" + strconv.Itoa(idx)
		}
		if _, exists := seenIDs[runtimeID]; exists {
			recordDuplicate(runtimeID)
			continue
		}
		seenIDs[runtimeID] = struct{}{}

		seeded = append(seeded, StudentRecord{
			RuntimeID:      runtimeID,
			AdmissionNo:    row.AdmissionNo,
			RollNo:         row.RollNo,
			Name:           row.Name,
			GitHubUsername: row.GitHubUsername,
			GitHubRepo:     row.GitHubRepo,
			Loading:        row.GitHubRepo != "",
		})
	}

	result := make([]StudentRecord, 0, len(seeded))
	seenKeys := make(map[string]struct{}, len(seeded))
	for _, record := range seeded {
		key := softKey(record)
		if key != "" {
			if _, exists := seenKeys[key]; exists {
				recordDuplicate(key)
				continue
			}
			seenKeys[key] = struct{}{}
		}
		result = append(result, record)
	}

	return result, duplicateKeys
}

func softKey(record StudentRecord) string {
	switch {
	case record.AdmissionNo != "":
		return record.AdmissionNo
	case record.RollNo != "":
		return record.RollNo
	case record.GitHubRepo != "":
		return record.GitHubRepo
	default:
		return record.Name
	}
}
