package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/example/groupware-scheduler/internal/persistence"
	"github.com/example/groupware-scheduler/internal/recurrence"
	"github.com/example/groupware-scheduler/internal/scheduler"
)

func TestExportRendersMastersAndSkipsOccurrences(t *testing.T) {
	t.Parallel()

	monday := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	count := 3
	masterID := "master-1"

	master := persistence.Schedule{
		ID:    masterID,
		Title: "Weekly Sync",
		Start: monday,
		End:   monday.Add(time.Hour),
		Recurrence: &recurrence.Rule{
			Frequency: recurrence.FrequencyWeekly,
			Interval:  1,
			EndCount:  &count,
		},
		Resources: []scheduler.ResourceBinding{
			{ResourceID: "room-a", ResourceType: scheduler.ResourceTypeRoom},
			{ResourceID: "vehicle-1", ResourceType: scheduler.ResourceTypeVehicle},
		},
	}
	occurrence := persistence.Schedule{
		ID:         "occ-1",
		Title:      "Weekly Sync",
		Start:      monday.AddDate(0, 0, 7),
		End:        monday.AddDate(0, 0, 7).Add(time.Hour),
		OriginalID: &masterID,
	}
	plain := persistence.Schedule{
		ID:    "plain-1",
		Title: "One-off",
		Start: monday.Add(3 * time.Hour),
		End:   monday.Add(4 * time.Hour),
	}

	out, err := Export([]persistence.Schedule{master, occurrence, plain}, monday)
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}

	if got := strings.Count(out, "BEGIN:VEVENT"); got != 2 {
		t.Errorf("expected 2 VEVENTs (occurrence skipped), got %d", got)
	}
	if !strings.Contains(out, "Weekly Sync") || !strings.Contains(out, "One-off") {
		t.Error("expected both summaries in the output")
	}
	if got := strings.Count(out, "RRULE:"); got != 1 {
		t.Errorf("expected exactly one RRULE (masters only), got %d", got)
	}
	if !strings.Contains(out, "FREQ=WEEKLY") || !strings.Contains(out, "COUNT=3") {
		t.Errorf("unexpected RRULE content in output:\n%s", out)
	}
	if !strings.Contains(out, "LOCATION:room-a") {
		t.Error("expected the room binding as LOCATION")
	}
}

func TestRuleString(t *testing.T) {
	t.Parallel()

	endDate := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		rule    recurrence.Rule
		want    []string
		wantErr error
	}{
		{
			name: "daily with interval",
			rule: recurrence.Rule{Frequency: recurrence.FrequencyDaily, Interval: 2},
			want: []string{"FREQ=DAILY", "INTERVAL=2"},
		},
		{
			name: "weekdays preset",
			rule: recurrence.Rule{Frequency: recurrence.FrequencyWeekdays, Interval: 1},
			want: []string{"FREQ=WEEKLY", "MO", "FR"},
		},
		{
			name: "custom weekday set",
			rule: recurrence.Rule{
				Frequency: recurrence.FrequencyCustom,
				Interval:  1,
				Weekdays:  []time.Weekday{time.Monday, time.Wednesday},
			},
			want: []string{"FREQ=WEEKLY", "MO", "WE"},
		},
		{
			name: "end by date",
			rule: recurrence.Rule{Frequency: recurrence.FrequencyMonthly, Interval: 1, EndDate: &endDate},
			want: []string{"FREQ=MONTHLY", "UNTIL=20251231"},
		},
		{
			name: "none yields empty",
			rule: recurrence.Rule{Frequency: recurrence.FrequencyNone},
			want: nil,
		},
		{
			name:    "custom without weekdays fails",
			rule:    recurrence.Rule{Frequency: recurrence.FrequencyCustom, Interval: 1},
			wantErr: recurrence.ErrEmptyWeekdaySet,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := RuleString(tt.rule)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("RuleString returned error: %v", err)
			}
			if len(tt.want) == 0 && got != "" {
				t.Fatalf("expected empty value, got %q", got)
			}
			for _, fragment := range tt.want {
				if !strings.Contains(got, fragment) {
					t.Errorf("expected %q in %q", fragment, got)
				}
			}
		})
	}
}
