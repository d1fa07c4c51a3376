// Package topostore implements registry.TopologyStore over a local sqlite
// database (pure-Go driver, no cgo), so topology survives a controller
// restart without requiring an external database service.
package topostore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/wtp/pnioc/registry"
)

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	station   TEXT PRIMARY KEY,
	ip        TEXT NOT NULL,
	vendor_id INTEGER NOT NULL,
	device_id INTEGER NOT NULL,
	slots     TEXT NOT NULL
);
`

// Store is a sqlite-backed registry.TopologyStore.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("topostore: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("topostore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveTopology replaces the persisted device set with entries.
func (s *Store) SaveTopology(entries []registry.TopologyEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("topostore: begin: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM devices"); err != nil {
		tx.Rollback()
		return fmt.Errorf("topostore: clear: %w", err)
	}
	for _, e := range entries {
		slots, err := json.Marshal(e.Slots)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("topostore: marshal slots for %s: %w", e.Station, err)
		}
		ip := ""
		if e.IP != nil {
			ip = e.IP.String()
		}
		if _, err := tx.Exec(
			"INSERT INTO devices (station, ip, vendor_id, device_id, slots) VALUES (?, ?, ?, ?, ?)",
			e.Station, ip, e.VendorID, e.DeviceID, string(slots),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("topostore: insert %s: %w", e.Station, err)
		}
	}
	return tx.Commit()
}

// LoadTopology returns every persisted device's identity and slot layout.
func (s *Store) LoadTopology() ([]registry.TopologyEntry, error) {
	rows, err := s.db.Query("SELECT station, ip, vendor_id, device_id, slots FROM devices")
	if err != nil {
		return nil, fmt.Errorf("topostore: query: %w", err)
	}
	defer rows.Close()

	var out []registry.TopologyEntry
	for rows.Next() {
		var e registry.TopologyEntry
		var ip, slotsJSON string
		if err := rows.Scan(&e.Station, &ip, &e.VendorID, &e.DeviceID, &slotsJSON); err != nil {
			return nil, fmt.Errorf("topostore: scan: %w", err)
		}
		if ip != "" {
			e.IP = parseIP(ip)
		}
		if err := json.Unmarshal([]byte(slotsJSON), &e.Slots); err != nil {
			return nil, fmt.Errorf("topostore: unmarshal slots for %s: %w", e.Station, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
