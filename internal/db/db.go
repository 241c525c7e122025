// Package db owns the durable occupancy state: the latest-write-wins
// current_occupancy table and the append-only movement_history log.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/railyard-data/yardwatch/internal/timeutil"
)

// Lane statuses derived from accepted actions.
const (
	StatusOccupied = "occupied"
	StatusFree     = "free"
	StatusAnomaly  = "anomaly"
)

// Recognised action kinds. Anything else is recorded as-is and surfaces the
// lane as an anomaly rather than being dropped.
const (
	ActionArrival   = "arrival"
	ActionDeparture = "departure"
)

// Action is one accepted domain action crossing the trust boundary into
// durable state.
type Action struct {
	Timestamp  time.Time `json:"timestamp" validate:"required"`
	LaneID     string    `json:"lane_id" validate:"required"`
	VehicleID  *string   `json:"vehicle_id"`
	Action     string    `json:"action" validate:"required"`
	Confidence *float64  `json:"confidence"`
}

// CurrentOccupancy is one lane's latest derived state.
type CurrentOccupancy struct {
	LaneID     string    `json:"lane_id"`
	Status     string    `json:"status"`
	VehicleID  *string   `json:"vehicle_id"`
	LastUpdate time.Time `json:"last_update"`
}

// Movement is one appended history row, preserved verbatim from its action.
type Movement struct {
	Timestamp  time.Time `json:"timestamp"`
	LaneID     string    `json:"lane_id"`
	VehicleID  *string   `json:"vehicle_id"`
	Action     string    `json:"action"`
	Confidence *float64  `json:"confidence"`
}

// DB wraps the yard SQLite database.
type DB struct {
	*sql.DB
	clock timeutil.Clock
}

// New opens (or creates) the database at path and applies pending
// migrations. A nil clock defaults to the real clock.
func New(path string, clock timeutil.Clock) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if clock == nil {
		clock = timeutil.RealClock{}
	}
	db := &DB{DB: sqlDB, clock: clock}

	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// RecordAction durably records one accepted action: the history row is
// appended verbatim and the lane's current_occupancy row is rewritten with
// the derived status, both inside a single transaction. On error neither
// table is modified. The occupancy row is stamped with the service clock,
// not the caller's timestamp.
func (db *DB) RecordAction(a Action) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin record action: %w", err)
	}
	defer tx.Rollback()

	if err := applyAction(tx, a, db.clock.Now()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record action: %w", err)
	}
	return nil
}

// applyAction appends the history row and upserts the lane's current state
// inside the caller's transaction. now is the timestamp written to
// current_occupancy.
func applyAction(tx *sql.Tx, a Action, now time.Time) error {
	_, err := tx.Exec(
		`INSERT INTO movement_history (ts, lane_id, vehicle_id, action, confidence)
		 VALUES (?, ?, ?, ?, ?)`,
		a.Timestamp, a.LaneID, a.VehicleID, a.Action, a.Confidence,
	)
	if err != nil {
		return fmt.Errorf("insert movement history: %w", err)
	}

	status, vehicle := deriveStatus(a)

	// Single unconditional upsert per action: latest write wins, no
	// read-modify-write race under concurrent callers. An anomaly without a
	// vehicle in the payload keeps the lane's previous occupant visible.
	_, err = tx.Exec(
		`INSERT INTO current_occupancy (lane_id, status, vehicle_id, last_update)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(lane_id) DO UPDATE SET
			status = excluded.status,
			vehicle_id = CASE
				WHEN excluded.status = ? AND excluded.vehicle_id IS NULL
					THEN current_occupancy.vehicle_id
				ELSE excluded.vehicle_id
			END,
			last_update = excluded.last_update`,
		a.LaneID, status, vehicle, now, StatusAnomaly,
	)
	if err != nil {
		return fmt.Errorf("upsert current occupancy: %w", err)
	}
	return nil
}

// deriveStatus maps an action kind to the lane status and occupant written
// to current_occupancy.
func deriveStatus(a Action) (status string, vehicle *string) {
	switch a.Action {
	case ActionArrival:
		return StatusOccupied, a.VehicleID
	case ActionDeparture:
		return StatusFree, nil
	default:
		return StatusAnomaly, a.VehicleID
	}
}

// ListOccupancy returns every current_occupancy row, ordered by lane id.
func (db *DB) ListOccupancy() ([]CurrentOccupancy, error) {
	rows, err := db.Query(
		`SELECT lane_id, status, vehicle_id, last_update
		 FROM current_occupancy ORDER BY lane_id`)
	if err != nil {
		return nil, fmt.Errorf("list occupancy: %w", err)
	}
	defer rows.Close()

	var out []CurrentOccupancy
	for rows.Next() {
		var c CurrentOccupancy
		if err := rows.Scan(&c.LaneID, &c.Status, &c.VehicleID, &c.LastUpdate); err != nil {
			return nil, fmt.Errorf("scan occupancy row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListHistory returns the full movement history in append order.
func (db *DB) ListHistory() ([]Movement, error) {
	rows, err := db.Query(
		`SELECT ts, lane_id, vehicle_id, action, confidence
		 FROM movement_history ORDER BY ts, id`)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.Timestamp, &m.LaneID, &m.VehicleID, &m.Action, &m.Confidence); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RebuildOccupancy reconstructs the current_occupancy table by replaying
// movement_history in timestamp order through the same derivation used on
// the live path. History is the sole source of truth after a restart; the
// rebuild is idempotent. Replayed rows are stamped with their action
// timestamp since the original write times are not part of history.
func (db *DB) RebuildOccupancy() error {
	history, err := db.ListHistory()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM current_occupancy`); err != nil {
		return fmt.Errorf("clear current occupancy: %w", err)
	}
	for _, m := range history {
		a := Action{
			Timestamp:  m.Timestamp,
			LaneID:     m.LaneID,
			VehicleID:  m.VehicleID,
			Action:     m.Action,
			Confidence: m.Confidence,
		}
		status, vehicle := deriveStatus(a)
		_, err := tx.Exec(
			`INSERT INTO current_occupancy (lane_id, status, vehicle_id, last_update)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(lane_id) DO UPDATE SET
				status = excluded.status,
				vehicle_id = CASE
					WHEN excluded.status = ? AND excluded.vehicle_id IS NULL
						THEN current_occupancy.vehicle_id
					ELSE excluded.vehicle_id
				END,
				last_update = excluded.last_update`,
			a.LaneID, status, vehicle, a.Timestamp, StatusAnomaly,
		)
		if err != nil {
			return fmt.Errorf("replay action: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}
	return nil
}
