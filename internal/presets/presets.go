// Package presets stores named pattern strings in SQLite so operators
// can recall a named lighting scene instead of retyping the bytecode,
// with an optional S3 mirror for fleet-wide sharing.
package presets

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Preset is one named, saved pattern program plus the logical lamps
// it was last applied to.
type Preset struct {
	Name      string `json:"name"`
	Pattern   string `json:"pattern"`
	Lamps     []int  `json:"lamps"`
	UpdatedAt string `json:"updated_at"`
}

// Store is a SQLite-backed preset table.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("presets: opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS presets (
		name TEXT PRIMARY KEY,
		pattern TEXT NOT NULL,
		lamps TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("presets: creating schema: %w", err)
	}
	return nil
}

// Save upserts a named preset.
func (s *Store) Save(name, pattern string, lamps []int) error {
	lampsCSV, err := encodeLamps(lamps)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO presets (name, pattern, lamps)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			pattern = excluded.pattern,
			lamps = excluded.lamps,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.Exec(query, name, pattern, lampsCSV); err != nil {
		return fmt.Errorf("presets: saving %q: %w", name, err)
	}
	return nil
}

// Get reads back a single preset by name.
func (s *Store) Get(name string) (*Preset, error) {
	query := `SELECT name, pattern, lamps, updated_at FROM presets WHERE name = ?`

	var p Preset
	var lampsCSV string
	err := s.db.QueryRow(query, name).Scan(&p.Name, &p.Pattern, &lampsCSV, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("presets: reading %q: %w", name, err)
	}

	p.Lamps, err = decodeLamps(lampsCSV)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns every stored preset, ordered by name.
func (s *Store) List() ([]Preset, error) {
	rows, err := s.db.Query(`SELECT name, pattern, lamps, updated_at FROM presets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("presets: listing: %w", err)
	}
	defer rows.Close()

	var out []Preset
	for rows.Next() {
		var p Preset
		var lampsCSV string
		if err := rows.Scan(&p.Name, &p.Pattern, &lampsCSV, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("presets: scanning row: %w", err)
		}
		p.Lamps, err = decodeLamps(lampsCSV)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes a named preset, reporting whether it existed.
func (s *Store) Delete(name string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM presets WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("presets: deleting %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Close() error { return s.db.Close() }

var ErrNotFound = fmt.Errorf("presets: no such preset")

func encodeLamps(lamps []int) (string, error) {
	out := ""
	for i, l := range lamps {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", l)
	}
	return out, nil
}

func decodeLamps(csv string) ([]int, error) {
	if csv == "" {
		return nil, nil
	}
	var out []int
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			var v int
			if _, err := fmt.Sscanf(csv[start:i], "%d", &v); err != nil {
				return nil, fmt.Errorf("presets: decoding lamp list %q: %w", csv, err)
			}
			out = append(out, v)
			start = i + 1
		}
	}
	return out, nil
}
