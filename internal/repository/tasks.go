package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

// timeFormat is fixed width so stored timestamps sort chronologically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const taskColumns = `id, event_id, event_type, analysis, asset, location, country,
	latitude, longitude, magnitude, event_date, start_date, end_date,
	area_of_interest, filename, status, user_id, resolution, last_error,
	created_at, updated_at`

func (s *SQLiteDB) Create(ctx context.Context, t *models.Task) error {
	resolution, err := encodeResolution(t.Resolution)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.EventID, string(t.EventType), string(t.Analysis), t.Asset, t.Location, t.Country,
		t.Latitude, t.Longitude, nullFloat(t.Magnitude),
		formatTime(t.EventDate), formatTime(t.StartDate), formatTime(t.EndDate),
		t.AreaOfInterest, t.Filename, string(t.Status), t.UserID, resolution, t.LastError,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicate, t.Fingerprint().Key())
		}
		return fmt.Errorf("error inserting task: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetByID(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
	}
	return t, err
}

func (s *SQLiteDB) FindByFingerprint(ctx context.Context, fp models.Fingerprint) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE latitude = ? AND longitude = ? AND event_type = ? AND analysis = ? AND asset = ?`,
		fp.Latitude, fp.Longitude, string(fp.EventType), string(fp.Analysis), fp.Asset,
	)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (s *SQLiteDB) List(ctx context.Context, opts Filter) ([]models.Task, error) {
	var (
		where []string
		args  []any
	)
	if opts.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(*opts.Since))
	}
	if opts.EventID != "" {
		where = append(where, "event_id = ?")
		args = append(args, opts.EventID)
	}
	if opts.EventType != nil {
		where = append(where, "event_type = ?")
		args = append(args, string(*opts.EventType))
	}
	if opts.Analysis != nil {
		where = append(where, "analysis = ?")
		args = append(args, string(*opts.Analysis))
	}
	if opts.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*opts.Status))
	}
	if opts.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, opts.UserID)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *SQLiteDB) UpdateStatus(ctx context.Context, id string, from, to models.TaskStatus, lastError string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks
		SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), lastError, formatTime(time.Now().UTC()), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("error updating task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteDB) UpdateResolution(ctx context.Context, t *models.Task) error {
	resolution, err := encodeResolution(t.Resolution)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE tasks
		SET area_of_interest = ?, start_date = ?, end_date = ?, resolution = ?, updated_at = ?
		WHERE id = ?`,
		t.AreaOfInterest, formatTime(t.StartDate), formatTime(t.EndDate), resolution,
		formatTime(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating task resolution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", models.ErrTaskNotFound, t.ID)
	}
	return nil
}

func (s *SQLiteDB) DeleteByEventID(ctx context.Context, eventID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE event_id = ?`, eventID)
	if err != nil {
		return 0, fmt.Errorf("error deleting tasks: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*models.Task, error) {
	var (
		t                             models.Task
		eventType, analysis, status   string
		location, country, userID     sql.NullString
		aoi, resolution, lastError    sql.NullString
		eventDate, startDate, endDate sql.NullString
		createdAt, updatedAt          string
		magnitude                     sql.NullFloat64
	)

	err := row.Scan(
		&t.ID, &t.EventID, &eventType, &analysis, &t.Asset, &location, &country,
		&t.Latitude, &t.Longitude, &magnitude, &eventDate, &startDate, &endDate,
		&aoi, &t.Filename, &status, &userID, &resolution, &lastError,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning task: %w", err)
	}

	t.EventType = models.EventType(eventType)
	t.Analysis = models.AnalysisType(analysis)
	t.Status = models.TaskStatus(status)
	t.Location = location.String
	t.Country = country.String
	t.UserID = userID.String
	t.AreaOfInterest = aoi.String
	t.LastError = lastError.String
	if magnitude.Valid {
		m := magnitude.Float64
		t.Magnitude = &m
	}
	t.EventDate = parseTime(eventDate.String)
	t.StartDate = parseTime(startDate.String)
	t.EndDate = parseTime(endDate.String)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)

	if resolution.String != "" {
		var r models.Resolution
		if err := json.Unmarshal([]byte(resolution.String), &r); err != nil {
			return nil, fmt.Errorf("error decoding resolution of task %s: %w", t.ID, err)
		}
		t.Resolution = &r
	}

	return &t, nil
}

func encodeResolution(r *models.Resolution) (sql.NullString, error) {
	if r == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("error encoding resolution: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func isConstraintViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
