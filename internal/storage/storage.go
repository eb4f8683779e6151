package storage

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"slitmask/internal/instrument"
	"slitmask/internal/mask"
	"slitmask/internal/maskio"
	"slitmask/internal/targets"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no mask has the requested id.
var ErrNotFound = errors.New("mask not found")

// Drivers accepted by Open. "sqlite" is the pure-Go driver, "sqlite3" the cgo one.
const (
	DriverPureGo = "sqlite"
	DriverCgo    = "sqlite3"
)

// Store wraps SQLite-backed persistence for mask configurations and their
// edit history.
type Store struct {
	DB *sql.DB // Export for direct database access
}

// New opens (or creates) the database at path with the pure-Go driver.
func New(path string) (*Store, error) {
	return Open(DriverPureGo, path)
}

// Open opens the database at path with driver and ensures schema.
func Open(driver, path string) (*Store, error) {
	switch driver {
	case "":
		driver = DriverPureGo
	case DriverPureGo, DriverCgo:
	default:
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS mask_configurations (
            id TEXT PRIMARY KEY,
            mask_name TEXT NOT NULL,
            instrument TEXT NOT NULL,
            msc_version TEXT,
            total_priority REAL,
            science_slits INTEGER,
            alignment_slits INTEGER,
            invalid_slits BOOLEAN DEFAULT FALSE,
            document TEXT NOT NULL,
            original_targets TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS mask_events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            mask_id TEXT NOT NULL,
            event_type TEXT NOT NULL,
            detail TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_mask_events_mask_id ON mask_events(mask_id);`,
		`CREATE INDEX IF NOT EXISTS idx_mask_configurations_name ON mask_configurations(mask_name);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// MaskRecord is the summary row of a stored configuration.
type MaskRecord struct {
	ID             string
	MaskName       string
	Instrument     string
	MSCVersion     string
	TotalPriority  float64
	ScienceSlits   int
	AlignmentSlits int
	InvalidSlits   bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EventRecord is one entry of a mask's edit history.
type EventRecord struct {
	ID        int64
	MaskID    string
	EventType string
	Detail    string
	CreatedAt time.Time
}

// SaveMask stores c under id, generating a new id when id is empty, and marks
// c saved. Unsaveable presets are refused.
func (s *Store) SaveMask(id string, c *mask.Configuration) (string, error) {
	if s == nil {
		return "", errors.New("store not initialized")
	}
	if !c.Saveable() {
		return "", fmt.Errorf("storing %s: %w", c.MaskName, mask.ErrUnsaveable)
	}
	if id == "" {
		id = uuid.NewString()
	}
	var doc, orig bytes.Buffer
	if err := maskio.WriteXML(&doc, c, ""); err != nil {
		return "", err
	}
	if err := targets.WriteCoords(&orig, c.Pointing.OriginalTargets); err != nil {
		return "", err
	}
	_, err := s.DB.Exec(`INSERT INTO mask_configurations (id, mask_name, instrument, msc_version, total_priority, science_slits, alignment_slits, invalid_slits, document, original_targets)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET mask_name=excluded.mask_name, instrument=excluded.instrument, msc_version=excluded.msc_version,
            total_priority=excluded.total_priority, science_slits=excluded.science_slits, alignment_slits=excluded.alignment_slits,
            invalid_slits=excluded.invalid_slits, document=excluded.document, original_targets=excluded.original_targets,
            updated_at=CURRENT_TIMESTAMP;`,
		id, c.MaskName, c.Instrument.Name, c.Instrument.MSCVersion, c.Pointing.TotalPriority,
		len(c.Science), len(c.Alignment), c.HasInvalidSlits(), doc.String(), orig.String())
	if err != nil {
		return "", fmt.Errorf("storing mask %s: %w", id, err)
	}
	c.MarkSaved("")
	return id, nil
}

// LoadMask reads the configuration stored under id for inst.
func (s *Store) LoadMask(id string, inst instrument.Params) (*mask.Configuration, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	var doc string
	var orig sql.NullString
	err := s.DB.QueryRow(`SELECT document, original_targets FROM mask_configurations WHERE id=?;`, id).Scan(&doc, &orig)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	c, _, err := maskio.ReadXML(strings.NewReader(doc), inst)
	if err != nil {
		return nil, fmt.Errorf("decoding mask %s: %w", id, err)
	}
	if orig.Valid && orig.String != "" {
		list, err := targets.ReadList(strings.NewReader(orig.String))
		if err != nil {
			return nil, fmt.Errorf("decoding targets of mask %s: %w", id, err)
		}
		c.Pointing.OriginalTargets = mergeOriginal(c, list.All())
	}
	return c, nil
}

// mergeOriginal keeps the linked target for every name already in a slit so
// that excess-target detection still works on pointers.
func mergeOriginal(c *mask.Configuration, parsed []*mask.Target) []*mask.Target {
	linked := make(map[string]*mask.Target)
	for _, t := range c.Pointing.Targets {
		linked[t.Name] = t
	}
	for _, t := range c.Pointing.AlignmentStars {
		linked[t.Name] = t
	}
	out := make([]*mask.Target, 0, len(parsed))
	for _, t := range parsed {
		if l, ok := linked[t.Name]; ok {
			out = append(out, l)
			continue
		}
		out = append(out, t)
	}
	return out
}

// ListMasks returns the most recently updated masks up to limit.
func (s *Store) ListMasks(limit int) ([]MaskRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT id, mask_name, instrument, msc_version, total_priority, science_slits, alignment_slits, invalid_slits, created_at, updated_at
        FROM mask_configurations ORDER BY updated_at DESC, created_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []MaskRecord
	for rows.Next() {
		var rec MaskRecord
		var version sql.NullString
		if err := rows.Scan(&rec.ID, &rec.MaskName, &rec.Instrument, &version, &rec.TotalPriority,
			&rec.ScienceSlits, &rec.AlignmentSlits, &rec.InvalidSlits, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.MSCVersion = version.String
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteMask removes a mask and its history.
func (s *Store) DeleteMask(id string) error {
	if s == nil {
		return nil
	}
	res, err := s.DB.Exec(`DELETE FROM mask_configurations WHERE id=?;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	_, err = s.DB.Exec(`DELETE FROM mask_events WHERE mask_id=?;`, id)
	return err
}

// RecordEvent appends to a mask's history.
func (s *Store) RecordEvent(ev EventRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT INTO mask_events (mask_id, event_type, detail) VALUES (?, ?, ?);`,
		ev.MaskID, ev.EventType, ev.Detail)
	return err
}

// Events returns a mask's history, oldest first, up to limit.
func (s *Store) Events(maskID string, limit int) ([]EventRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT id, mask_id, event_type, detail, created_at FROM mask_events WHERE mask_id=? ORDER BY id ASC LIMIT ?;`, maskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []EventRecord
	for rows.Next() {
		var rec EventRecord
		var detail sql.NullString
		if err := rows.Scan(&rec.ID, &rec.MaskID, &rec.EventType, &detail, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Detail = detail.String
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
