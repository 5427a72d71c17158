package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/cabinet.report/internal/camera"
)

// ErrDeviceNotFound is returned when a device id has no row.
var ErrDeviceNotFound = errors.New("device not found")

// Device is a registered cabinet camera and its configuration. Boundary
// coordinates are normalized to [0,1] of the frame; they are nil until
// calibration stores a line.
type Device struct {
	DeviceID         string     `json:"device_id"`
	Name             string     `json:"name"`
	DetectionEnabled bool       `json:"detection_enabled"`
	DirectionAToB    string     `json:"direction_a_to_b"`
	Boundary         *camera.BoundaryLine `json:"boundary,omitempty"`
	Online           bool       `json:"online"`
	LastSeen         *time.Time `json:"last_seen,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// GetDevice returns one device or ErrDeviceNotFound.
func (db *DB) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	row := db.QueryRowContext(ctx, `
		SELECT device_id, name, detection_enabled, direction_a_to_b,
		       boundary_x1, boundary_y1, boundary_x2, boundary_y2,
		       online, last_seen, created_at, updated_at
		FROM devices WHERE device_id = ?`, deviceID)
	return scanDevice(row)
}

// ListDevices returns all devices ordered by id.
func (db *DB) ListDevices(ctx context.Context) ([]*Device, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT device_id, name, detection_enabled, direction_a_to_b,
		       boundary_x1, boundary_y1, boundary_x2, boundary_y2,
		       online, last_seen, created_at, updated_at
		FROM devices ORDER BY device_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	var x1, y1, x2, y2 sql.NullFloat64
	var lastSeen sql.NullTime
	err := row.Scan(&d.DeviceID, &d.Name, &d.DetectionEnabled, &d.DirectionAToB,
		&x1, &y1, &x2, &y2, &d.Online, &lastSeen, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan device: %w", err)
	}
	if x1.Valid && y1.Valid && x2.Valid && y2.Valid {
		d.Boundary = &camera.BoundaryLine{X1: x1.Float64, Y1: y1.Float64, X2: x2.Float64, Y2: y2.Float64}
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		d.LastSeen = &t
	}
	return &d, nil
}

// SetDeviceName updates the display name of an existing device.
func (db *DB) SetDeviceName(ctx context.Context, deviceID, name string) error {
	result, err := db.ExecContext(ctx, `
		UPDATE devices SET name = ?, updated_at = CURRENT_TIMESTAMP
		WHERE device_id = ?`, name, deviceID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SetBoundary stores a device's boundary line and its SideA-to-SideB
// direction label. The line is validated before it reaches here.
func (db *DB) SetBoundary(ctx context.Context, deviceID string, line camera.BoundaryLine, aToB camera.Direction) error {
	result, err := db.ExecContext(ctx, `
		UPDATE devices
		SET boundary_x1 = ?, boundary_y1 = ?, boundary_x2 = ?, boundary_y2 = ?,
		    direction_a_to_b = ?, updated_at = CURRENT_TIMESTAMP
		WHERE device_id = ?`,
		line.X1, line.Y1, line.X2, line.Y2, string(aToB), deviceID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SetDetectionEnabled flips the persistent detection toggle.
func (db *DB) SetDetectionEnabled(ctx context.Context, deviceID string, enabled bool) error {
	result, err := db.ExecContext(ctx, `
		UPDATE devices SET detection_enabled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE device_id = ?`, enabled, deviceID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SetDeviceOnline records connection status, inserting the device row on
// first contact. Part of the camera.DeviceDirectory interface.
func (db *DB) SetDeviceOnline(ctx context.Context, deviceID string, online bool) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO devices (device_id, online, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (device_id) DO UPDATE SET
			online = excluded.online,
			last_seen = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP`,
		deviceID, online)
	return err
}

// DeviceSettings returns the session configuration snapshot for a device.
// Part of the camera.DeviceDirectory interface. An unknown device gets
// defaults: detection off, no boundary.
func (db *DB) DeviceSettings(ctx context.Context, deviceID string) (camera.DeviceSettings, error) {
	device, err := db.GetDevice(ctx, deviceID)
	if errors.Is(err, ErrDeviceNotFound) {
		return camera.DeviceSettings{AToB: camera.DirectionIn}, nil
	}
	if err != nil {
		return camera.DeviceSettings{}, err
	}
	return camera.DeviceSettings{
		Boundary:         device.Boundary,
		AToB:             camera.Direction(device.DirectionAToB),
		DetectionEnabled: device.DetectionEnabled,
	}, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}
