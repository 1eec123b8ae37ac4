package scheduler

import "time"

// ResourceType classifies a bookable resource bound to a schedule.
type ResourceType string

const (
	// ResourceTypeRoom identifies a meeting room binding.
	ResourceTypeRoom ResourceType = "room"
	// ResourceTypeVehicle identifies a company vehicle binding.
	ResourceTypeVehicle ResourceType = "vehicle"
	// ResourceTypeSample identifies a sample loan binding. Sample entries are
	// exempt from conflict evaluation.
	ResourceTypeSample ResourceType = "sample"
)

// ResourceBinding ties a schedule to a resource. Bindings match only when
// both the identifier and the type agree.
type ResourceBinding struct {
	ResourceID   string
	ResourceType ResourceType
}

// Schedule is the projection of a stored schedule the detector evaluates.
type Schedule struct {
	ID           string
	Title        string
	Participants []string
	Resources    []ResourceBinding
	Start        time.Time
	End          time.Time
}

// Candidate describes the proposed window under evaluation.
type Candidate struct {
	Start        time.Time
	End          time.Time
	Participants []string
	Resources    []ResourceBinding
	// ExcludeID removes one schedule from consideration, used when editing
	// that same record.
	ExcludeID string
}

// Verdict is the structured outcome of conflict detection. It is returned as
// a value, never as an error, because a conflict is an expected business
// outcome the caller must branch on.
type Verdict struct {
	HasConflicts bool
	Conflicts    []Schedule
}

// DetectConflicts evaluates the candidate window against every known
// schedule. A conflict requires temporal overlap and a shared participant or
// a shared resource binding; overlap alone with disjoint participants and
// resources is not a conflict. Schedules carrying a sample binding are
// exempt from evaluation entirely.
func DetectConflicts(existing []Schedule, candidate Candidate) Verdict {
	verdict := Verdict{}

	if hasSampleBinding(candidate.Resources) {
		return verdict
	}

	for _, schedule := range existing {
		if candidate.ExcludeID != "" && schedule.ID == candidate.ExcludeID {
			continue
		}
		if hasSampleBinding(schedule.Resources) {
			continue
		}
		if !windowsOverlap(candidate.Start, candidate.End, schedule.Start, schedule.End) {
			continue
		}
		if !shareParticipant(candidate.Participants, schedule.Participants) &&
			!shareResource(candidate.Resources, schedule.Resources) {
			continue
		}
		verdict.Conflicts = append(verdict.Conflicts, schedule)
	}

	verdict.HasConflicts = len(verdict.Conflicts) > 0
	return verdict
}

// windowsOverlap applies three independent half-open boundary checks: the
// proposed start falls inside the existing window, the proposed end falls
// inside it, or the proposed window fully contains it. Keeping the checks
// separate keeps each edge case independently testable.
func windowsOverlap(proposedStart, proposedEnd, existingStart, existingEnd time.Time) bool {
	if startInside(proposedStart, existingStart, existingEnd) {
		return true
	}
	if endInside(proposedEnd, existingStart, existingEnd) {
		return true
	}
	if containsWindow(proposedStart, proposedEnd, existingStart, existingEnd) {
		return true
	}
	return false
}

func startInside(start, existingStart, existingEnd time.Time) bool {
	return !start.Before(existingStart) && start.Before(existingEnd)
}

func endInside(end, existingStart, existingEnd time.Time) bool {
	return end.After(existingStart) && !end.After(existingEnd)
}

func containsWindow(proposedStart, proposedEnd, existingStart, existingEnd time.Time) bool {
	return !existingStart.Before(proposedStart) && !existingEnd.After(proposedEnd)
}

func shareParticipant(left, right []string) bool {
	if len(left) == 0 || len(right) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(left))
	for _, id := range left {
		seen[id] = struct{}{}
	}
	for _, id := range right {
		if _, ok := seen[id]; ok {
			return true
		}
	}
	return false
}

func shareResource(left, right []ResourceBinding) bool {
	if len(left) == 0 || len(right) == 0 {
		return false
	}
	seen := make(map[ResourceBinding]struct{}, len(left))
	for _, binding := range left {
		seen[binding] = struct{}{}
	}
	for _, binding := range right {
		if _, ok := seen[binding]; ok {
			return true
		}
	}
	return false
}

func hasSampleBinding(bindings []ResourceBinding) bool {
	for _, binding := range bindings {
		if binding.ResourceType == ResourceTypeSample {
			return true
		}
	}
	return false
}
