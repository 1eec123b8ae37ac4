// Package ics renders stored schedules as an iCalendar document. Recurrence
// masters carry an RRULE; their materialized occurrences are skipped so the
// exported series is defined once.
package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/example/groupware-scheduler/internal/persistence"
	"github.com/example/groupware-scheduler/internal/recurrence"
	"github.com/example/groupware-scheduler/internal/scheduler"
)

const productID = "-//groupware-scheduler//EN"

// Export renders the schedules into a single VCALENDAR. Occurrence records
// referencing a master are dropped; everything else becomes one VEVENT.
func Export(schedules []persistence.Schedule, now time.Time) (string, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, schedule := range schedules {
		if schedule.OriginalID != nil {
			continue
		}
		if err := addEvent(cal, schedule, now); err != nil {
			return "", err
		}
	}

	return cal.Serialize(), nil
}

func addEvent(cal *ical.Calendar, schedule persistence.Schedule, now time.Time) error {
	event := cal.AddEvent(schedule.ID + "@groupware-scheduler")
	event.SetDtStampTime(now.UTC())
	event.SetSummary(schedule.Title)

	if schedule.Description != "" {
		event.SetDescription(schedule.Description)
	}
	if location := roomLocation(schedule.Resources); location != "" {
		event.SetLocation(location)
	}

	if schedule.AllDay {
		event.SetAllDayStartAt(schedule.Start)
		event.SetAllDayEndAt(schedule.End)
	} else {
		event.SetStartAt(schedule.Start.UTC())
		event.SetEndAt(schedule.End.UTC())
	}

	if schedule.IsMaster() {
		value, err := RuleString(*schedule.Recurrence)
		if err != nil {
			return fmt.Errorf("ics: schedule %s: %w", schedule.ID, err)
		}
		if value != "" {
			event.AddRrule(value)
		}
	}

	return nil
}

// RuleString serializes a recurrence rule into an RRULE value.
func RuleString(rule recurrence.Rule) (string, error) {
	option := rrule.ROption{Interval: rule.Interval}

	switch rule.Frequency {
	case recurrence.FrequencyNone, "":
		return "", nil
	case recurrence.FrequencyDaily:
		option.Freq = rrule.DAILY
	case recurrence.FrequencyWeekly:
		option.Freq = rrule.WEEKLY
	case recurrence.FrequencyMonthly:
		option.Freq = rrule.MONTHLY
	case recurrence.FrequencyYearly:
		option.Freq = rrule.YEARLY
	case recurrence.FrequencyWeekdays:
		option.Freq = rrule.WEEKLY
		option.Byweekday = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}
	case recurrence.FrequencyCustom:
		if len(rule.Weekdays) == 0 {
			return "", recurrence.ErrEmptyWeekdaySet
		}
		option.Freq = rrule.WEEKLY
		for _, day := range rule.Weekdays {
			option.Byweekday = append(option.Byweekday, toRRuleWeekday(day))
		}
	default:
		return "", fmt.Errorf("ics: unknown frequency %q", rule.Frequency)
	}

	if rule.EndCount != nil {
		option.Count = *rule.EndCount
	}
	if rule.EndDate != nil {
		option.Until = rule.EndDate.UTC()
	}

	return option.RRuleString(), nil
}

func toRRuleWeekday(day time.Weekday) rrule.Weekday {
	switch day {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}

func roomLocation(bindings []scheduler.ResourceBinding) string {
	var rooms []string
	for _, binding := range bindings {
		if binding.ResourceType == scheduler.ResourceTypeRoom {
			rooms = append(rooms, binding.ResourceID)
		}
	}
	return strings.Join(rooms, ", ")
}
