// Package history records readings in a SQLite database.
package history

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ericogr/dht22-to-mqtt/pkg/sensor"
)

const DefaultPath = "dht22.db"

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	if path == "" {
		path = DefaultPath
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS readings (
			reading_id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			timestamp_ms BIGINT NOT NULL,
			temperature_c DOUBLE,
			humidity_pct DOUBLE,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &DB{db}, nil
}

// Publish stores valid environmental readings; anything else is ignored.
func (db *DB) Publish(r sensor.Reading) error {
	e, ok := r.Environmental()
	if !ok {
		return nil
	}
	_, err := db.Exec("INSERT INTO readings (kind, timestamp_ms, temperature_c, humidity_pct) VALUES (?, ?, ?, ?)",
		r.Kind.String(), int64(r.TimestampMs), float64(e.TemperatureC), float64(e.HumidityPct))
	return err
}

// Recent returns up to limit readings, newest first.
func (db *DB) Recent(limit int) ([]sensor.Reading, error) {
	rows, err := db.Query("SELECT kind, timestamp_ms, temperature_c, humidity_pct FROM readings ORDER BY reading_id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sensor.Reading
	for rows.Next() {
		var (
			kind     string
			ts       int64
			temp, rh float64
		)
		if err := rows.Scan(&kind, &ts, &temp, &rh); err != nil {
			return nil, err
		}
		k, err := sensor.ParseKind(kind)
		if err != nil {
			return nil, err
		}
		out = append(out, sensor.Reading{
			Kind:        k,
			TimestampMs: uint64(ts),
			Valid:       true,
			Payload:     sensor.EnvironmentalData{TemperatureC: float32(temp), HumidityPct: float32(rh)},
		})
	}
	return out, rows.Err()
}

func (db *DB) Count() (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM readings").Scan(&n)
	return n, err
}
