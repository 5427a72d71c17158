package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/cabinet.report/internal/camera"
)

// ErrEventNotFound is returned when an event id has no row.
var ErrEventNotFound = errors.New("event not found")

// EventRecord is a stored detection event. Snapshot bytes are excluded
// from listings and fetched separately by id.
type EventRecord struct {
	EventID     string    `json:"event_id"`
	DeviceID    string    `json:"device_id"`
	TrackID     int64     `json:"track_id"`
	Label       string    `json:"label"`
	Brand       string    `json:"brand,omitempty"`
	Confidence  float64   `json:"confidence"`
	Direction   string    `json:"direction"`
	HasSnapshot bool      `json:"has_snapshot"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventFilter narrows ListEvents. Zero values mean no constraint.
type EventFilter struct {
	DeviceID  string
	Label     string
	Direction string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// SaveEvent persists one detection event. Part of the camera.EventSink
// interface; called from the emitter's writer goroutines. Event time is
// stored as epoch seconds so SQLite date functions can bucket it.
func (db *DB) SaveEvent(ctx context.Context, event *camera.DetectionEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO detection_events (
			event_id, device_id, track_id, label, brand,
			confidence, direction, snapshot, event_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.DeviceID, event.TrackID, event.Label, event.Brand,
		event.Confidence, string(event.Direction), event.Snapshot, event.Timestamp.UTC().Unix())
	if err != nil {
		return fmt.Errorf("insert detection event: %w", err)
	}
	return nil
}

// ListEvents returns events matching the filter, newest first.
func (db *DB) ListEvents(ctx context.Context, filter EventFilter) ([]*EventRecord, error) {
	var conditions []string
	var args []any

	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Label != "" {
		conditions = append(conditions, "label = ?")
		args = append(args, filter.Label)
	}
	if filter.Direction != "" {
		conditions = append(conditions, "direction = ?")
		args = append(args, filter.Direction)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "event_unix >= ?")
		args = append(args, filter.Since.Unix())
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "event_unix < ?")
		args = append(args, filter.Until.Unix())
	}

	query := `
		SELECT event_id, device_id, track_id, label, brand, confidence,
		       direction, snapshot IS NOT NULL, event_unix
		FROM detection_events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY event_unix DESC, rowid DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*EventRecord
	for rows.Next() {
		var e EventRecord
		var eventUnix int64
		if err := rows.Scan(&e.EventID, &e.DeviceID, &e.TrackID, &e.Label, &e.Brand,
			&e.Confidence, &e.Direction, &e.HasSnapshot, &eventUnix); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp = time.Unix(eventUnix, 0).UTC()
		events = append(events, &e)
	}
	return events, rows.Err()
}

// EventSnapshot returns the stored JPEG for an event, or ErrEventNotFound
// when the event does not exist or carries no snapshot.
func (db *DB) EventSnapshot(ctx context.Context, eventID string) ([]byte, error) {
	var snapshot []byte
	err := db.QueryRowContext(ctx,
		`SELECT snapshot FROM detection_events WHERE event_id = ?`, eventID).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(snapshot) == 0 {
		return nil, ErrEventNotFound
	}
	return snapshot, nil
}

// DailyCount is one day's event volume for a single direction.
type DailyCount struct {
	Day       string `json:"day"`
	Direction string `json:"direction"`
	Count     int    `json:"count"`
}

// EventCountsByDay aggregates event volume per day and direction over the
// trailing window, for the activity chart.
func (db *DB) EventCountsByDay(ctx context.Context, deviceID string, since time.Time) ([]DailyCount, error) {
	query := `
		SELECT date(event_unix, 'unixepoch') AS day, direction, COUNT(*)
		FROM detection_events
		WHERE event_unix >= ?`
	args := []any{since.Unix()}
	if deviceID != "" {
		query += " AND device_id = ?"
		args = append(args, deviceID)
	}
	query += " GROUP BY day, direction ORDER BY day, direction"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []DailyCount
	for rows.Next() {
		var c DailyCount
		if err := rows.Scan(&c.Day, &c.Direction, &c.Count); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// PruneEvents deletes events older than cutoff and returns how many rows
// were removed. Snapshot blobs dominate database growth.
func (db *DB) PruneEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		`DELETE FROM detection_events WHERE event_unix < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
