package domain

import "strconv"

// NextVersion returns the version to assign to a new evaluation given the versions already stored
// for the same partner: max(existing, 0) + 1.
func NextVersion(existing []int) int {
	highest := 0
	for _, v := range existing {
		if v > highest {
			highest = v
		}
	}
	return highest + 1
}

// Latest returns the evaluation with the highest version, or nil for an empty set. When two entries
// share the highest version the one seen last wins.
func Latest(evaluations []Evaluation) *Evaluation {
	var latest *Evaluation
	for i := range evaluations {
		if latest == nil || evaluations[i].Version >= latest.Version {
			latest = &evaluations[i]
		}
	}
	return latest
}

// LatestByPartner groups evaluations by partner and applies Latest to each group.
func LatestByPartner(evaluations []Evaluation) map[string]Evaluation {
	out := make(map[string]Evaluation)
	for _, eval := range evaluations {
		current, ok := out[eval.PartnerID]
		if !ok || eval.Version >= current.Version {
			out[eval.PartnerID] = eval
		}
	}
	return out
}

// Versions extracts the version numbers from a set of evaluations.
func Versions(evaluations []Evaluation) []int {
	out := make([]int, 0, len(evaluations))
	for _, eval := range evaluations {
		out = append(out, eval.Version)
	}
	return out
}

// EvaluationID is the stable identifier of a partner's evaluation version. Using it as the storage
// key makes a duplicate (partner, version) pair impossible to persist.
func EvaluationID(partnerID string, version int) string {
	return partnerID + "_v" + strconv.Itoa(version)
}
