// Package catalog persists the filter library in sqlite: filter
// definitions, their endpoints, parameters, examples, tags, test cases, and
// chains.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "modernc.org/sqlite"

	"github.com/zigilabs/amazon-mcp/internal/common"
	"github.com/zigilabs/amazon-mcp/internal/filter"
)

const schemaVersion = "1"

// Store wraps the sqlite catalog database.
type Store struct {
	db  *sql.DB
	sqd goqu.DialectWrapper
	log *common.Logger
}

// Open opens (creating if needed) the catalog at path and applies the
// schema. ":memory:" is accepted for ephemeral catalogs.
func Open(path string, log *common.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening filter catalog %s: %w", path, err)
	}
	// modernc sqlite serializes writes itself; one connection avoids
	// SQLITE_BUSY on concurrent imports
	db.SetMaxOpenConns(1)

	s := &Store{db: db, sqd: goqu.Dialect("sqlite3"), log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS filters (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		expression TEXT NOT NULL,
		kind TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		estimated_reduction REAL NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS filter_endpoints (
		filter_id TEXT NOT NULL REFERENCES filters(id) ON DELETE CASCADE,
		endpoint TEXT NOT NULL,
		PRIMARY KEY (filter_id, endpoint)
	)`,
	`CREATE TABLE IF NOT EXISTS filter_parameters (
		filter_id TEXT NOT NULL REFERENCES filters(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'string',
		required INTEGER NOT NULL DEFAULT 0,
		default_value TEXT,
		PRIMARY KEY (filter_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS filter_examples (
		filter_id TEXT NOT NULL REFERENCES filters(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		usage TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS filter_tags (
		filter_id TEXT NOT NULL REFERENCES filters(id) ON DELETE CASCADE,
		tag TEXT NOT NULL,
		PRIMARY KEY (filter_id, tag)
	)`,
	`CREATE TABLE IF NOT EXISTS filter_tests (
		filter_id TEXT NOT NULL REFERENCES filters(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		input TEXT NOT NULL,
		params TEXT,
		expected TEXT NOT NULL,
		PRIMARY KEY (filter_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS filter_chains (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		steps TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_filter_endpoints_endpoint ON filter_endpoints(endpoint)`,
	`CREATE INDEX IF NOT EXISTS idx_filters_category ON filters(category)`,
}

func (s *Store) migrate() error {
	for i, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("catalog migration %d: %w", i, err)
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, schemaVersion)
	if err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}
	return nil
}

// FilterRecord is the full stored form of one filter.
type FilterRecord struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Description        string             `json:"description"`
	Expression         string             `json:"expression"`
	Kind               string             `json:"kind"`
	Category           string             `json:"category"`
	EstimatedReduction float64            `json:"estimated_reduction"`
	IsActive           bool               `json:"is_active"`
	Endpoints          []string           `json:"endpoints,omitempty"`
	Parameters         []filter.ParamSpec `json:"parameters,omitempty"`
	Examples           []Example          `json:"examples,omitempty"`
	Tags               []string           `json:"tags,omitempty"`
	Tests              []TestCase         `json:"tests,omitempty"`
}

// Example shows one way to invoke a filter.
type Example struct {
	Title string `json:"title"`
	Usage string `json:"usage"`
}

// TestCase is a stored input/expected pair used to validate a filter's
// expression against the engine.
type TestCase struct {
	Name     string          `json:"name"`
	Input    json.RawMessage `json:"input"`
	Params   map[string]any  `json:"params,omitempty"`
	Expected json.RawMessage `json:"expected"`
}

// ChainRecord is the stored form of one chain.
type ChainRecord struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
	IsActive    bool     `json:"is_active"`
}

// UpsertFilter validates and writes one filter and its relations,
// replacing any previous version with the same id.
func (s *Store) UpsertFilter(ctx context.Context, rec FilterRecord) error {
	if rec.ID == "" || rec.Expression == "" {
		return fmt.Errorf("filter needs id and expression")
	}
	ast, err := filter.Parse(rec.Expression)
	if err != nil {
		return fmt.Errorf("filter %q: bad expression: %w", rec.ID, err)
	}
	declared := map[string]bool{}
	for _, p := range rec.Parameters {
		declared[p.Name] = true
	}
	for _, name := range filter.Params(ast) {
		if !declared[name] {
			return fmt.Errorf("filter %q: expression references undeclared parameter {%s}", rec.ID, name)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO filters (id, name, description, expression, kind, category, estimated_reduction, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			kind = excluded.kind,
			category = excluded.category,
			estimated_reduction = excluded.estimated_reduction,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Name, rec.Description, rec.Expression, rec.Kind, rec.Category,
		rec.EstimatedReduction, boolToInt(rec.IsActive), now, now)
	if err != nil {
		return fmt.Errorf("upserting filter %q: %w", rec.ID, err)
	}

	for _, table := range []string{"filter_endpoints", "filter_parameters", "filter_examples", "filter_tags", "filter_tests"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE filter_id = ?", rec.ID); err != nil {
			return fmt.Errorf("clearing %s for %q: %w", table, rec.ID, err)
		}
	}
	for _, ep := range rec.Endpoints {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO filter_endpoints (filter_id, endpoint) VALUES (?, ?)", rec.ID, ep); err != nil {
			return err
		}
	}
	for _, p := range rec.Parameters {
		var def any
		if p.Default != nil {
			raw, err := json.Marshal(p.Default)
			if err != nil {
				return fmt.Errorf("filter %q: encoding default for %q: %w", rec.ID, p.Name, err)
			}
			def = string(raw)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO filter_parameters (filter_id, name, type, required, default_value) VALUES (?, ?, ?, ?, ?)",
			rec.ID, p.Name, p.Type, boolToInt(p.Required), def); err != nil {
			return err
		}
	}
	for _, ex := range rec.Examples {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO filter_examples (filter_id, title, usage) VALUES (?, ?, ?)",
			rec.ID, ex.Title, ex.Usage); err != nil {
			return err
		}
	}
	for _, tag := range rec.Tags {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO filter_tags (filter_id, tag) VALUES (?, ?)", rec.ID, tag); err != nil {
			return err
		}
	}
	for _, tc := range rec.Tests {
		var params any
		if tc.Params != nil {
			raw, err := json.Marshal(tc.Params)
			if err != nil {
				return err
			}
			params = string(raw)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO filter_tests (filter_id, name, input, params, expected) VALUES (?, ?, ?, ?, ?)",
			rec.ID, tc.Name, string(tc.Input), params, string(tc.Expected)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpsertChain validates and writes one chain. Every step must name an
// existing filter; naming a chain (directly or through a cycle) is
// rejected.
func (s *Store) UpsertChain(ctx context.Context, rec ChainRecord) error {
	if rec.ID == "" || len(rec.Steps) == 0 {
		return fmt.Errorf("chain needs id and at least one step")
	}
	if err := s.checkChainSteps(ctx, rec.ID, rec.Steps, map[string]bool{rec.ID: true}); err != nil {
		return err
	}

	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO filter_chains (id, name, description, steps, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			steps = excluded.steps,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Name, rec.Description, string(steps), boolToInt(rec.IsActive), now, now)
	if err != nil {
		return fmt.Errorf("upserting chain %q: %w", rec.ID, err)
	}
	return nil
}

// checkChainSteps walks the chain's references depth first. Steps must
// resolve to filters; a step resolving to a chain means nesting, and a
// revisited chain id means a cycle.
func (s *Store) checkChainSteps(ctx context.Context, chainID string, steps []string, visiting map[string]bool) error {
	for _, id := range steps {
		if visiting[id] {
			return fmt.Errorf("chain %q: cycle through %q", chainID, id)
		}
		chain, err := s.ChainByID(ctx, id)
		if err == nil {
			// nested chain: reject, but keep walking to surface cycles
			// with a precise message first
			visiting[id] = true
			if err := s.checkChainSteps(ctx, chainID, chain.Steps, visiting); err != nil {
				return err
			}
			delete(visiting, id)
			return fmt.Errorf("chain %q: step %q is a chain; chains cannot nest", chainID, id)
		}
		if !errors.Is(err, filter.ErrNotFound) {
			return err
		}
		if _, err := s.FilterByID(ctx, id); err != nil {
			if errors.Is(err, filter.ErrNotFound) {
				return fmt.Errorf("chain %q: step %q is not a known filter", chainID, id)
			}
			return err
		}
	}
	return nil
}

// FilterByID loads one active filter in the engine's form. Implements
// filter.Catalog.
func (s *Store) FilterByID(ctx context.Context, id string) (*filter.Definition, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, expression, kind, estimated_reduction FROM filters WHERE id = ? AND is_active = 1", id)
	def := &filter.Definition{}
	err := row.Scan(&def.ID, &def.Name, &def.Expression, &def.Kind, &def.EstimatedReduction)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, filter.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading filter %q: %w", id, err)
	}
	def.Params, err = s.paramsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return def, nil
}

func (s *Store) paramsFor(ctx context.Context, filterID string) ([]filter.ParamSpec, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, type, required, default_value FROM filter_parameters WHERE filter_id = ? ORDER BY name", filterID)
	if err != nil {
		return nil, fmt.Errorf("loading parameters for %q: %w", filterID, err)
	}
	defer rows.Close()

	var params []filter.ParamSpec
	for rows.Next() {
		var p filter.ParamSpec
		var required int
		var def sql.NullString
		if err := rows.Scan(&p.Name, &p.Type, &required, &def); err != nil {
			return nil, err
		}
		p.Required = required != 0
		if def.Valid {
			if err := json.Unmarshal([]byte(def.String), &p.Default); err != nil {
				return nil, fmt.Errorf("parameter %q of %q: bad default: %w", p.Name, filterID, err)
			}
		}
		params = append(params, p)
	}
	return params, rows.Err()
}

// ChainByID loads one active chain. Implements filter.Catalog.
func (s *Store) ChainByID(ctx context.Context, id string) (*filter.ChainDefinition, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, steps FROM filter_chains WHERE id = ? AND is_active = 1", id)
	def := &filter.ChainDefinition{}
	var steps string
	err := row.Scan(&def.ID, &def.Name, &steps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, filter.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading chain %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(steps), &def.Steps); err != nil {
		return nil, fmt.Errorf("chain %q: bad steps: %w", id, err)
	}
	return def, nil
}

// BestReductionFilter picks the endpoint's field filter with the highest
// estimated reduction. Implements filter.Catalog.
func (s *Store) BestReductionFilter(ctx context.Context, endpoint string) (*filter.Definition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT f.id FROM filters f
		 JOIN filter_endpoints e ON e.filter_id = f.id
		 WHERE e.endpoint = ? AND f.is_active = 1 AND f.kind = 'field'
		 ORDER BY f.estimated_reduction DESC, f.id ASC
		 LIMIT 1`, endpoint)
	var id string
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, filter.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("selecting reduction filter for %q: %w", endpoint, err)
	}
	return s.FilterByID(ctx, id)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
