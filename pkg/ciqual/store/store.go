// Package store owns the SQLite schema and the transactional loader
// used by the ingestion pipeline. The store is rebuilt wholesale: a
// load either commits every phase or rolls back to the previous state.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/zzgael/ciqual-mcp/pkg/ciqual/internalerr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS foods (
	alim_code INTEGER PRIMARY KEY,
	alim_nom_fr TEXT,
	alim_nom_eng TEXT,
	alim_grp_code TEXT
);

CREATE TABLE IF NOT EXISTS nutrients (
	const_code INTEGER PRIMARY KEY,
	const_nom_fr TEXT,
	const_nom_eng TEXT,
	unit TEXT
);

CREATE TABLE IF NOT EXISTS composition (
	alim_code INTEGER,
	const_code INTEGER,
	teneur REAL,
	code_confiance TEXT,
	PRIMARY KEY (alim_code, const_code),
	FOREIGN KEY (alim_code) REFERENCES foods(alim_code),
	FOREIGN KEY (const_code) REFERENCES nutrients(const_code)
);

CREATE TABLE IF NOT EXISTS food_groups (
	grp_code TEXT PRIMARY KEY,
	grp_nom_fr TEXT,
	grp_nom_eng TEXT
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	foods INTEGER NOT NULL,
	nutrients INTEGER NOT NULL,
	compositions INTEGER NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS foods_fts USING fts5(
	alim_code,
	alim_nom_fr,
	alim_nom_eng,
	content=foods,
	tokenize='unicode61 remove_diacritics 1'
);

CREATE INDEX IF NOT EXISTS idx_composition_nutrient ON composition(const_code);
CREATE INDEX IF NOT EXISTS idx_foods_group ON foods(alim_grp_code);
CREATE INDEX IF NOT EXISTS idx_foods_name_fr ON foods(alim_nom_fr);
CREATE INDEX IF NOT EXISTS idx_foods_name_eng ON foods(alim_nom_eng);
`

// Store is a writable handle on the Ciqual SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store with WAL mode and foreign keys
// enabled, and applies the schema. Safe against an already-initialized
// database: every DDL statement is create-if-absent.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer connection keeps the session pragmas bound to the
	// connection every transaction runs on.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// OpenReadOnly opens the store for query serving. The connection is
// enforced read-only at both the file level (mode=ro) and the session
// level (query_only).
func OpenReadOnly(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA query_only=ON", "PRAGMA temp_store=MEMORY"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Counts reports the row counts of the three core tables.
type Counts struct {
	Foods        int64
	Nutrients    int64
	Compositions int64
}

// Counts returns the current table sizes.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	return counts(ctx, s.db)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func counts(ctx context.Context, q querier) (Counts, error) {
	var c Counts
	for _, t := range []struct {
		table string
		dst   *int64
	}{
		{"foods", &c.Foods},
		{"nutrients", &c.Nutrients},
		{"composition", &c.Compositions},
	} {
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.table).Scan(t.dst); err != nil {
			return Counts{}, err
		}
	}
	return c, nil
}

// Load runs fn inside a single transaction covering every load phase.
// After fn returns, pending composition batches are flushed, the food
// table is verified non-empty, and an ingest run row is recorded. Any
// error rolls the whole load back, leaving prior contents untouched.
func (s *Store) Load(ctx context.Context, batchSize int, fn func(*Loader) error) (Counts, error) {
	started := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Counts{}, err
	}
	defer tx.Rollback()

	l := &Loader{ctx: ctx, tx: tx, batchSize: batchSize}
	if err := fn(l); err != nil {
		return Counts{}, err
	}
	if err := l.Flush(); err != nil {
		return Counts{}, err
	}

	c, err := counts(ctx, tx)
	if err != nil {
		return Counts{}, err
	}
	if c.Foods == 0 {
		return Counts{}, fmt.Errorf("%w: no foods were loaded", internalerr.ErrValidationFailed)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO ingest_runs (id, started_at, finished_at, foods, nutrients, compositions)
VALUES (?, ?, ?, ?, ?, ?);
`, ulid.Make().String(), started.Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339),
		c.Foods, c.Nutrients, c.Compositions)
	if err != nil {
		return Counts{}, err
	}

	return c, tx.Commit()
}

// Loader exposes the per-phase write operations of a load transaction.
type Loader struct {
	ctx       context.Context
	tx        *sql.Tx
	batchSize int
	batch     []compositionRow
}

type compositionRow struct {
	foodCode     int64
	nutrientCode int64
	value        float64
	confidence   string
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// UpsertNutrient inserts or replaces a nutrient by code.
func (l *Loader) UpsertNutrient(code int64, nameFr, nameEng, unit string) error {
	_, err := l.tx.ExecContext(l.ctx, `
INSERT INTO nutrients (const_code, const_nom_fr, const_nom_eng, unit)
VALUES (?, ?, ?, ?)
ON CONFLICT(const_code) DO UPDATE SET
	const_nom_fr=excluded.const_nom_fr,
	const_nom_eng=excluded.const_nom_eng,
	unit=excluded.unit;
`, code, nullable(nameFr), nullable(nameEng), nullable(unit))
	return err
}

// UpsertFoodGroup inserts or replaces a food group by code.
func (l *Loader) UpsertFoodGroup(code, nameFr, nameEng string) error {
	_, err := l.tx.ExecContext(l.ctx, `
INSERT INTO food_groups (grp_code, grp_nom_fr, grp_nom_eng)
VALUES (?, ?, ?)
ON CONFLICT(grp_code) DO UPDATE SET
	grp_nom_fr=excluded.grp_nom_fr,
	grp_nom_eng=excluded.grp_nom_eng;
`, code, nullable(nameFr), nullable(nameEng))
	return err
}

// UpsertFood inserts or replaces a food by code.
func (l *Loader) UpsertFood(code int64, nameFr, nameEng, groupCode string) error {
	_, err := l.tx.ExecContext(l.ctx, `
INSERT INTO foods (alim_code, alim_nom_fr, alim_nom_eng, alim_grp_code)
VALUES (?, ?, ?, ?)
ON CONFLICT(alim_code) DO UPDATE SET
	alim_nom_fr=excluded.alim_nom_fr,
	alim_nom_eng=excluded.alim_nom_eng,
	alim_grp_code=excluded.alim_grp_code;
`, code, nullable(nameFr), nullable(nameEng), nullable(groupCode))
	return err
}

// AddComposition queues a composition value, flushing a batch once the
// batch size is reached. Batching is throughput only; final state is
// identical to row-at-a-time writes.
func (l *Loader) AddComposition(foodCode, nutrientCode int64, value float64, confidence string) error {
	l.batch = append(l.batch, compositionRow{foodCode, nutrientCode, value, confidence})
	if len(l.batch) >= l.batchSize {
		return l.Flush()
	}
	return nil
}

// Flush writes any queued composition rows.
func (l *Loader) Flush() error {
	if len(l.batch) == 0 {
		return nil
	}

	stmt, err := l.tx.PrepareContext(l.ctx, `
INSERT INTO composition (alim_code, const_code, teneur, code_confiance)
VALUES (?, ?, ?, ?)
ON CONFLICT(alim_code, const_code) DO UPDATE SET
	teneur=excluded.teneur,
	code_confiance=excluded.code_confiance;
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range l.batch {
		if _, err := stmt.ExecContext(l.ctx, row.foodCode, row.nutrientCode, row.value, nullable(row.confidence)); err != nil {
			return err
		}
	}
	l.batch = l.batch[:0]
	return nil
}

// RebuildSearchIndex clears and repopulates the full-text index from
// the current foods table in one pass.
func (l *Loader) RebuildSearchIndex() error {
	_, err := l.tx.ExecContext(l.ctx, `INSERT INTO foods_fts(foods_fts) VALUES('rebuild');`)
	return err
}
