package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/groupware-scheduler/internal/persistence"
	"github.com/example/groupware-scheduler/internal/recurrence"
	"github.com/example/groupware-scheduler/internal/scheduler"
)

// ScheduleRepository implements persistence.ScheduleRepository using SQLite.
type ScheduleRepository struct {
	pool *ConnectionPool
}

// NewScheduleRepository creates a new SQLite schedule repository.
func NewScheduleRepository(pool *ConnectionPool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

var scheduleColumnList = []string{
	"id", "type", "title", "description", "start_time", "end_time", "all_day", "multi_day",
	"recur_frequency", "recur_interval", "recur_end_count", "recur_end_date", "recur_weekdays",
	"origin", "external_event_id", "original_id", "meeting_mode", "visibility",
	"created_by", "created_at", "updated_by", "updated_at",
}

var scheduleColumns = strings.Join(scheduleColumnList, ", ")

func prefixedScheduleColumns(prefix string) string {
	parts := make([]string, len(scheduleColumnList))
	for i, column := range scheduleColumnList {
		parts[i] = prefix + "." + column
	}
	return strings.Join(parts, ", ")
}

// CreateSchedule inserts a single schedule with participants and resources.
func (r *ScheduleRepository) CreateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return insertScheduleTx(tx, schedule)
	})
}

// CreateSchedules inserts a master and its materialized occurrences in one
// transaction so a series never exists half-created.
func (r *ScheduleRepository) CreateSchedules(ctx context.Context, schedules []persistence.Schedule) error {
	if len(schedules) == 0 {
		return nil
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, schedule := range schedules {
			if err := insertScheduleTx(tx, schedule); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateSchedule updates an existing schedule and replaces its participants
// and resources.
func (r *ScheduleRepository) UpdateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	if schedule.ID == "" {
		return persistence.ErrNotFound
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE schedules
			SET type = ?, title = ?, description = ?, start_time = ?, end_time = ?,
				all_day = ?, multi_day = ?,
				recur_frequency = ?, recur_interval = ?, recur_end_count = ?, recur_end_date = ?, recur_weekdays = ?,
				origin = ?, external_event_id = ?, original_id = ?, meeting_mode = ?, visibility = ?,
				updated_by = ?, updated_at = ?
			WHERE id = ?
		`

		rule := encodeRule(schedule.Recurrence)
		result, err := tx.Exec(query,
			schedule.Type,
			schedule.Title,
			schedule.Description,
			schedule.Start.UTC().Format(time.RFC3339),
			schedule.End.UTC().Format(time.RFC3339),
			boolToInt(schedule.AllDay),
			boolToInt(schedule.MultiDay),
			rule.frequency,
			rule.interval,
			rule.endCount,
			rule.endDate,
			rule.weekdays,
			string(schedule.Origin),
			nullString(schedule.ExternalEventID),
			nullString(schedule.OriginalID),
			string(schedule.MeetingMode),
			string(schedule.Visibility),
			schedule.UpdatedBy,
			schedule.UpdatedAt.UTC().Format(time.RFC3339),
			schedule.ID,
		)
		if err != nil {
			return mapSQLiteError(err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}

		if _, err := tx.Exec("DELETE FROM schedule_participants WHERE schedule_id = ?", schedule.ID); err != nil {
			return mapSQLiteError(err)
		}
		if _, err := tx.Exec("DELETE FROM schedule_resources WHERE schedule_id = ?", schedule.ID); err != nil {
			return mapSQLiteError(err)
		}
		return insertBindingsTx(tx, schedule)
	})
}

// GetSchedule retrieves a schedule by ID.
func (r *ScheduleRepository) GetSchedule(ctx context.Context, id string) (persistence.Schedule, error) {
	if id == "" {
		return persistence.Schedule{}, persistence.ErrNotFound
	}

	row := r.pool.db.QueryRowContext(ctx,
		"SELECT "+scheduleColumns+" FROM schedules WHERE id = ?", id)

	schedule, err := scanSchedule(row)
	if err != nil {
		return persistence.Schedule{}, err
	}

	if err := r.loadBindings(ctx, &schedule); err != nil {
		return persistence.Schedule{}, err
	}
	return schedule, nil
}

// ListSchedules lists schedules matching the provided filter ordered by start
// time.
func (r *ScheduleRepository) ListSchedules(ctx context.Context, filter persistence.ScheduleFilter) ([]persistence.Schedule, error) {
	query, args := buildListQuery(filter)

	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var schedules []persistence.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError(err)
	}

	for i := range schedules {
		if err := r.loadBindings(ctx, &schedules[i]); err != nil {
			return nil, err
		}
	}
	return schedules, nil
}

// DeleteSchedule removes a single schedule. Participants and resources go
// with it via ON DELETE CASCADE.
func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	result, err := r.pool.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return mapSQLiteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// DeleteSeries removes the master schedule and every materialized occurrence
// referencing it in one statement, so a partial failure cannot leave the
// series half-deleted.
func (r *ScheduleRepository) DeleteSeries(ctx context.Context, masterID string) error {
	if masterID == "" {
		return persistence.ErrNotFound
	}

	result, err := r.pool.db.ExecContext(ctx,
		"DELETE FROM schedules WHERE id = ? OR original_id = ?", masterID, masterID)
	if err != nil {
		return mapSQLiteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func insertScheduleTx(tx *sql.Tx, schedule persistence.Schedule) error {
	if schedule.ID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO schedules (` + scheduleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	rule := encodeRule(schedule.Recurrence)
	_, err := tx.Exec(query,
		schedule.ID,
		schedule.Type,
		schedule.Title,
		schedule.Description,
		schedule.Start.UTC().Format(time.RFC3339),
		schedule.End.UTC().Format(time.RFC3339),
		boolToInt(schedule.AllDay),
		boolToInt(schedule.MultiDay),
		rule.frequency,
		rule.interval,
		rule.endCount,
		rule.endDate,
		rule.weekdays,
		string(schedule.Origin),
		nullString(schedule.ExternalEventID),
		nullString(schedule.OriginalID),
		string(schedule.MeetingMode),
		string(schedule.Visibility),
		schedule.CreatedBy,
		schedule.CreatedAt.UTC().Format(time.RFC3339),
		schedule.UpdatedBy,
		schedule.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return mapSQLiteError(err)
	}

	return insertBindingsTx(tx, schedule)
}

func insertBindingsTx(tx *sql.Tx, schedule persistence.Schedule) error {
	for _, userID := range schedule.ParticipantIDs {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			continue
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO schedule_participants (schedule_id, user_id) VALUES (?, ?)",
			schedule.ID, userID); err != nil {
			return mapSQLiteError(err)
		}
	}
	for _, binding := range schedule.Resources {
		if binding.ResourceID == "" {
			continue
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO schedule_resources (schedule_id, resource_id, resource_type) VALUES (?, ?, ?)",
			schedule.ID, binding.ResourceID, string(binding.ResourceType)); err != nil {
			return mapSQLiteError(err)
		}
	}
	return nil
}

func (r *ScheduleRepository) loadBindings(ctx context.Context, schedule *persistence.Schedule) error {
	rows, err := r.pool.db.QueryContext(ctx,
		"SELECT user_id FROM schedule_participants WHERE schedule_id = ? ORDER BY user_id ASC",
		schedule.ID)
	if err != nil {
		return mapSQLiteError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return mapSQLiteError(err)
		}
		schedule.ParticipantIDs = append(schedule.ParticipantIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return mapSQLiteError(err)
	}

	resourceRows, err := r.pool.db.QueryContext(ctx,
		"SELECT resource_id, resource_type FROM schedule_resources WHERE schedule_id = ? ORDER BY resource_id ASC",
		schedule.ID)
	if err != nil {
		return mapSQLiteError(err)
	}
	defer resourceRows.Close()

	for resourceRows.Next() {
		var id, resourceType string
		if err := resourceRows.Scan(&id, &resourceType); err != nil {
			return mapSQLiteError(err)
		}
		schedule.Resources = append(schedule.Resources, scheduler.ResourceBinding{
			ResourceID:   id,
			ResourceType: scheduler.ResourceType(resourceType),
		})
	}
	return resourceRows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (persistence.Schedule, error) {
	var schedule persistence.Schedule
	var startStr, endStr, createdAtStr, updatedAtStr string
	var allDay, multiDay int
	var origin, meetingMode, visibility string
	var externalEventID, originalID sql.NullString
	var recurFrequency, recurEndDate, recurWeekdays sql.NullString
	var recurInterval, recurEndCount sql.NullInt64

	err := row.Scan(
		&schedule.ID,
		&schedule.Type,
		&schedule.Title,
		&schedule.Description,
		&startStr,
		&endStr,
		&allDay,
		&multiDay,
		&recurFrequency,
		&recurInterval,
		&recurEndCount,
		&recurEndDate,
		&recurWeekdays,
		&origin,
		&externalEventID,
		&originalID,
		&meetingMode,
		&visibility,
		&schedule.CreatedBy,
		&createdAtStr,
		&schedule.UpdatedBy,
		&updatedAtStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.Schedule{}, persistence.ErrNotFound
		}
		return persistence.Schedule{}, mapSQLiteError(err)
	}

	schedule.AllDay = allDay != 0
	schedule.MultiDay = multiDay != 0
	schedule.Origin = persistence.Origin(origin)
	schedule.MeetingMode = persistence.MeetingMode(meetingMode)
	schedule.Visibility = persistence.Visibility(visibility)
	if externalEventID.Valid {
		schedule.ExternalEventID = &externalEventID.String
	}
	if originalID.Valid {
		schedule.OriginalID = &originalID.String
	}

	if schedule.Start, err = time.Parse(time.RFC3339, startStr); err != nil {
		return persistence.Schedule{}, fmt.Errorf("failed to parse start_time: %w", err)
	}
	if schedule.End, err = time.Parse(time.RFC3339, endStr); err != nil {
		return persistence.Schedule{}, fmt.Errorf("failed to parse end_time: %w", err)
	}
	if schedule.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return persistence.Schedule{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if schedule.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return persistence.Schedule{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	rule, err := decodeRule(recurFrequency, recurInterval, recurEndCount, recurEndDate, recurWeekdays)
	if err != nil {
		return persistence.Schedule{}, err
	}
	schedule.Recurrence = rule

	return schedule, nil
}

func buildListQuery(filter persistence.ScheduleFilter) (string, []any) {
	baseQuery := "SELECT DISTINCT " + prefixedScheduleColumns("s") + " FROM schedules s"

	var conditions []string
	var args []any

	if len(filter.ParticipantIDs) > 0 {
		baseQuery += " LEFT JOIN schedule_participants sp ON s.id = sp.schedule_id"
		placeholders := make([]string, len(filter.ParticipantIDs))
		for i, id := range filter.ParticipantIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		conditions = append(conditions,
			fmt.Sprintf("sp.user_id IN (%s)", strings.Join(placeholders, ",")))
	}

	if filter.ResourceID != "" {
		baseQuery += " LEFT JOIN schedule_resources sr ON s.id = sr.schedule_id"
		conditions = append(conditions, "sr.resource_id = ?")
		args = append(args, filter.ResourceID)
	}

	if filter.StartsAfter != nil {
		conditions = append(conditions, "s.end_time > ?")
		args = append(args, filter.StartsAfter.UTC().Format(time.RFC3339))
	}
	if filter.EndsBefore != nil {
		conditions = append(conditions, "s.start_time < ?")
		args = append(args, filter.EndsBefore.UTC().Format(time.RFC3339))
	}
	if filter.Origin != nil {
		conditions = append(conditions, "s.origin = ?")
		args = append(args, string(*filter.Origin))
	}

	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	baseQuery += " ORDER BY s.start_time ASC, s.id ASC"

	return baseQuery, args
}

// encodedRule is the column representation of a recurrence rule.
type encodedRule struct {
	frequency sql.NullString
	interval  sql.NullInt64
	endCount  sql.NullInt64
	endDate   sql.NullString
	weekdays  sql.NullString
}

func encodeRule(rule *recurrence.Rule) encodedRule {
	if rule == nil || rule.Frequency == recurrence.FrequencyNone || rule.Frequency == "" {
		return encodedRule{}
	}

	encoded := encodedRule{
		frequency: sql.NullString{String: string(rule.Frequency), Valid: true},
		interval:  sql.NullInt64{Int64: int64(rule.Interval), Valid: true},
	}
	if rule.EndCount != nil {
		encoded.endCount = sql.NullInt64{Int64: int64(*rule.EndCount), Valid: true}
	}
	if rule.EndDate != nil {
		encoded.endDate = sql.NullString{String: rule.EndDate.UTC().Format(time.RFC3339), Valid: true}
	}
	if len(rule.Weekdays) > 0 {
		parts := make([]string, len(rule.Weekdays))
		for i, day := range rule.Weekdays {
			parts[i] = strconv.Itoa(int(day))
		}
		encoded.weekdays = sql.NullString{String: strings.Join(parts, ","), Valid: true}
	}
	return encoded
}

func decodeRule(frequency sql.NullString, interval, endCount sql.NullInt64, endDate, weekdays sql.NullString) (*recurrence.Rule, error) {
	if !frequency.Valid || frequency.String == "" || frequency.String == string(recurrence.FrequencyNone) {
		return nil, nil
	}

	rule := &recurrence.Rule{
		Frequency: recurrence.Frequency(frequency.String),
		Interval:  1,
	}
	if interval.Valid && interval.Int64 >= 1 {
		rule.Interval = int(interval.Int64)
	}
	if endCount.Valid {
		count := int(endCount.Int64)
		rule.EndCount = &count
	}
	if endDate.Valid {
		parsed, err := time.Parse(time.RFC3339, endDate.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse recur_end_date: %w", err)
		}
		rule.EndDate = &parsed
	}
	if weekdays.Valid && weekdays.String != "" {
		for _, part := range strings.Split(weekdays.String, ",") {
			value, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, fmt.Errorf("failed to parse recur_weekdays: %w", err)
			}
			rule.Weekdays = append(rule.Weekdays, time.Weekday(value))
		}
	}
	return rule, nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
