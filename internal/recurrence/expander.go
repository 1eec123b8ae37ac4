package recurrence

import (
	"errors"
	"time"
)

// Frequency identifies how a recurrence rule advances between occurrences.
type Frequency string

const (
	// FrequencyNone marks a schedule without recurrence.
	FrequencyNone Frequency = "none"
	// FrequencyDaily advances by whole days.
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly advances by whole weeks.
	FrequencyWeekly Frequency = "weekly"
	// FrequencyMonthly advances by calendar months with month-end clamping.
	FrequencyMonthly Frequency = "monthly"
	// FrequencyYearly advances by calendar years with month-end clamping.
	FrequencyYearly Frequency = "yearly"
	// FrequencyWeekdays advances day by day, skipping Saturday and Sunday.
	FrequencyWeekdays Frequency = "weekdays"
	// FrequencyCustom advances across an explicit weekday selection.
	FrequencyCustom Frequency = "custom"
)

// Rule describes a recurrence configuration attached to a master schedule.
//
// EndCount and EndDate are mutually exclusive end conditions; when both are
// nil the series never ends and expansion is bounded by the query window and
// the emission cap.
type Rule struct {
	Frequency Frequency
	Interval  int
	EndCount  *int
	EndDate   *time.Time
	Weekdays  []time.Weekday
}

// Window is a half-open [Start, End) time span.
type Window struct {
	Start time.Time
	End   time.Time
}

// maxOccurrences caps how many windows a single expansion emits. Termination
// of never-ending rules comes from the query window: the cursor strictly
// advances and the loop stops once it passes query.End.
const maxOccurrences = 100

// ErrEmptyWeekdaySet indicates a custom rule without any selected weekday.
// Expansion of that one series is aborted; callers must not fall back to a
// daily interpretation.
var ErrEmptyWeekdaySet = errors.New("recurrence: custom rule has empty weekday set")

// Expand generates the occurrences of rule anchored at anchor that intersect
// the query window. The result is ordered, duplicate free, and capped at
// maxOccurrences entries. Identical inputs always yield identical output; no
// state is carried between invocations.
//
// Each emitted occurrence preserves the anchor's duration. Anchors spanning
// several days keep their exact day delta and end clock time so the
// time-of-day stays stable across month boundaries and DST shifts.
func Expand(anchor Window, rule Rule, query Window) ([]Window, error) {
	if rule.Frequency == FrequencyNone || rule.Frequency == "" {
		return nil, nil
	}

	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}

	weekdaySet := make(map[time.Weekday]struct{}, len(rule.Weekdays))
	for _, day := range rule.Weekdays {
		weekdaySet[day] = struct{}{}
	}
	if rule.Frequency == FrequencyCustom && len(weekdaySet) == 0 {
		return nil, ErrEmptyWeekdaySet
	}

	cursor := anchor.Start
	if rule.Frequency == FrequencyCustom {
		cursor = alignToWeekdaySet(cursor, weekdaySet)
	}

	dayDelta, endClock := anchorShape(anchor)
	duration := anchor.End.Sub(anchor.Start)

	occurrences := make([]Window, 0)
	generated := 0

	for len(occurrences) < maxOccurrences {
		if rule.EndCount != nil && generated >= *rule.EndCount {
			break
		}
		if rule.EndDate != nil && dateAfter(cursor, *rule.EndDate) {
			break
		}

		if !cursor.Before(query.Start) && cursor.Before(query.End) {
			occurrences = append(occurrences, Window{
				Start: cursor,
				End:   occurrenceEnd(cursor, dayDelta, endClock, duration),
			})
		}
		generated++

		next, ok := step(cursor, rule.Frequency, interval, weekdaySet)
		if !ok || !next.After(cursor) {
			break
		}
		if !next.Before(query.End) {
			break
		}
		cursor = next
	}

	return occurrences, nil
}

// step computes the next cursor position for the given frequency. It is the
// single advancement function for every frequency, including the custom
// weekday walk. The boolean result is false when the frequency cannot
// advance.
func step(cursor time.Time, freq Frequency, interval int, weekdaySet map[time.Weekday]struct{}) (time.Time, bool) {
	switch freq {
	case FrequencyDaily:
		return cursor.AddDate(0, 0, interval), true
	case FrequencyWeekly:
		return cursor.AddDate(0, 0, 7*interval), true
	case FrequencyMonthly:
		return addMonthsClamped(cursor, interval), true
	case FrequencyYearly:
		return addMonthsClamped(cursor, 12*interval), true
	case FrequencyWeekdays:
		next := cursor.AddDate(0, 0, 1)
		for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
			next = next.AddDate(0, 0, 1)
		}
		return next, true
	case FrequencyCustom:
		return stepWeekdaySet(cursor, interval, weekdaySet), true
	default:
		return time.Time{}, false
	}
}

// stepWeekdaySet advances to the next selected weekday: first any later
// weekday within the current week, otherwise the earliest selected weekday
// interval weeks ahead. Weeks start on Sunday, matching time.Weekday.
func stepWeekdaySet(cursor time.Time, interval int, weekdaySet map[time.Weekday]struct{}) time.Time {
	current := cursor.Weekday()

	for day := current + 1; day <= time.Saturday; day++ {
		if _, ok := weekdaySet[day]; ok {
			return cursor.AddDate(0, 0, int(day-current))
		}
	}

	first := firstWeekday(weekdaySet)
	days := 7*interval - int(current) + int(first)
	return cursor.AddDate(0, 0, days)
}

// alignToWeekdaySet walks cursor forward day by day until it lands on a
// selected weekday. With a non-empty set this terminates within seven steps.
func alignToWeekdaySet(cursor time.Time, weekdaySet map[time.Weekday]struct{}) time.Time {
	for i := 0; i < 7; i++ {
		if _, ok := weekdaySet[cursor.Weekday()]; ok {
			return cursor
		}
		cursor = cursor.AddDate(0, 0, 1)
	}
	return cursor
}

func firstWeekday(weekdaySet map[time.Weekday]struct{}) time.Weekday {
	for day := time.Sunday; day <= time.Saturday; day++ {
		if _, ok := weekdaySet[day]; ok {
			return day
		}
	}
	return time.Sunday
}

// anchorShape captures the day delta and end clock time of the anchor so
// multi-day occurrences can be rebuilt without raw duration arithmetic.
func anchorShape(anchor Window) (int, time.Time) {
	startDay := truncateToDay(anchor.Start)
	endDay := truncateToDay(anchor.End)
	delta := int(endDay.Sub(startDay).Hours() / 24)
	return delta, anchor.End
}

func occurrenceEnd(start time.Time, dayDelta int, endClock time.Time, duration time.Duration) time.Time {
	if dayDelta == 0 {
		return start.Add(duration)
	}
	endDay := start.AddDate(0, 0, dayDelta)
	return time.Date(endDay.Year(), endDay.Month(), endDay.Day(),
		endClock.Hour(), endClock.Minute(), endClock.Second(), endClock.Nanosecond(), start.Location())
}

// addMonthsClamped adds months keeping the day of month when possible and
// clamping to the last day of the target month otherwise, unlike AddDate
// which lets the 31st roll over into the following month.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	targetFirst := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := lastDayOfMonth(targetFirst.Year(), targetFirst.Month())
	if day > last {
		day = last
	}
	return time.Date(targetFirst.Year(), targetFirst.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dateAfter(t, limit time.Time) bool {
	return truncateToDay(t).After(truncateToDay(limit.In(t.Location())))
}
