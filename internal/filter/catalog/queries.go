package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/doug-martin/goqu/v9"

	"github.com/zigilabs/amazon-mcp/internal/filter"
)

// Summary is the search/list row for one filter.
type Summary struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	Kind               string   `json:"kind"`
	Category           string   `json:"category"`
	EstimatedReduction float64  `json:"estimated_reduction"`
	Endpoints          []string `json:"endpoints,omitempty"`
	Tags               []string `json:"tags,omitempty"`
}

// SearchQuery narrows a catalog search. Zero fields match everything.
type SearchQuery struct {
	Endpoint string
	Category string
	Kind     string
	Tag      string
	// Term matches name and description, case-insensitive substring.
	Term  string
	Limit int
}

// Search returns active filters matching the query, most reductive first.
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]Summary, error) {
	ds := s.sqd.From(goqu.T("filters").As("f")).
		Select("f.id", "f.name", "f.description", "f.kind", "f.category", "f.estimated_reduction").
		Where(goqu.Ex{"f.is_active": 1}).
		Order(goqu.I("f.estimated_reduction").Desc(), goqu.I("f.id").Asc()).
		Distinct()

	if q.Endpoint != "" {
		ds = ds.Join(goqu.T("filter_endpoints").As("e"),
			goqu.On(goqu.Ex{"e.filter_id": goqu.I("f.id")})).
			Where(goqu.Ex{"e.endpoint": q.Endpoint})
	}
	if q.Tag != "" {
		ds = ds.Join(goqu.T("filter_tags").As("t"),
			goqu.On(goqu.Ex{"t.filter_id": goqu.I("f.id")})).
			Where(goqu.Ex{"t.tag": q.Tag})
	}
	if q.Category != "" {
		ds = ds.Where(goqu.Ex{"f.category": q.Category})
	}
	if q.Kind != "" {
		ds = ds.Where(goqu.Ex{"f.kind": q.Kind})
	}
	if q.Term != "" {
		pat := "%" + q.Term + "%"
		// sqlite LIKE is case-insensitive for ASCII
		ds = ds.Where(goqu.Or(
			goqu.I("f.name").Like(pat),
			goqu.I("f.description").Like(pat),
		))
	}
	if q.Limit > 0 {
		ds = ds.Limit(uint(q.Limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building search query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching filters: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Description, &sum.Kind, &sum.Category, &sum.EstimatedReduction); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Endpoints, err = s.stringsFor(ctx, "filter_endpoints", "endpoint", out[i].ID); err != nil {
			return nil, err
		}
		if out[i].Tags, err = s.stringsFor(ctx, "filter_tags", "tag", out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) stringsFor(ctx context.Context, table, column, filterID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE filter_id = ? ORDER BY %s", column, table, column), filterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListGrouped returns all active filters grouped by kind, plus chains and
// totals.
func (s *Store) ListGrouped(ctx context.Context) (map[string]any, error) {
	all, err := s.Search(ctx, SearchQuery{})
	if err != nil {
		return nil, err
	}
	grouped := map[string][]Summary{}
	for _, f := range all {
		grouped[f.Kind] = append(grouped[f.Kind], f)
	}
	chains, err := s.listChains(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"filters":      grouped,
		"chains":       chains,
		"total":        len(all),
		"total_chains": len(chains),
	}, nil
}

func (s *Store) listChains(ctx context.Context) ([]ChainRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, description, steps, is_active FROM filter_chains WHERE is_active = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing chains: %w", err)
	}
	defer rows.Close()
	var out []ChainRecord
	for rows.Next() {
		var c ChainRecord
		var steps string
		var active int
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &steps, &active); err != nil {
			return nil, err
		}
		c.IsActive = active != 0
		if err := json.Unmarshal([]byte(steps), &c.Steps); err != nil {
			return nil, fmt.Errorf("chain %q: bad steps: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Detail loads the full record for one filter: expression, relations, and
// examples.
func (s *Store) Detail(ctx context.Context, id string) (*FilterRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, expression, kind, category, estimated_reduction, is_active
		 FROM filters WHERE id = ?`, id)
	rec := &FilterRecord{}
	var active int
	err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.Expression, &rec.Kind,
		&rec.Category, &rec.EstimatedReduction, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, filter.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading filter %q: %w", id, err)
	}
	rec.IsActive = active != 0

	if rec.Endpoints, err = s.stringsFor(ctx, "filter_endpoints", "endpoint", id); err != nil {
		return nil, err
	}
	if rec.Tags, err = s.stringsFor(ctx, "filter_tags", "tag", id); err != nil {
		return nil, err
	}
	if rec.Parameters, err = s.paramsFor(ctx, id); err != nil {
		return nil, err
	}

	exRows, err := s.db.QueryContext(ctx,
		"SELECT title, usage FROM filter_examples WHERE filter_id = ?", id)
	if err != nil {
		return nil, err
	}
	defer exRows.Close()
	for exRows.Next() {
		var ex Example
		if err := exRows.Scan(&ex.Title, &ex.Usage); err != nil {
			return nil, err
		}
		rec.Examples = append(rec.Examples, ex)
	}
	if err := exRows.Err(); err != nil {
		return nil, err
	}

	rec.Tests, err = s.testsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) testsFor(ctx context.Context, id string) ([]TestCase, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, input, params, expected FROM filter_tests WHERE filter_id = ? ORDER BY name", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TestCase
	for rows.Next() {
		var tc TestCase
		var input, expected string
		var params sql.NullString
		if err := rows.Scan(&tc.Name, &input, &params, &expected); err != nil {
			return nil, err
		}
		tc.Input = json.RawMessage(input)
		tc.Expected = json.RawMessage(expected)
		if params.Valid {
			if err := json.Unmarshal([]byte(params.String), &tc.Params); err != nil {
				return nil, fmt.Errorf("test %q: bad params: %w", tc.Name, err)
			}
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// TestResult reports one stored test case run through the engine.
type TestResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
	Got    any    `json:"got,omitempty"`
	Want   any    `json:"want,omitempty"`
}

// Validate runs a filter's stored test cases through the engine and reports
// each outcome.
func (s *Store) Validate(ctx context.Context, id string) ([]TestResult, error) {
	rec, err := s.Detail(ctx, id)
	if err != nil {
		return nil, err
	}
	ast, err := filter.Parse(rec.Expression)
	if err != nil {
		return nil, fmt.Errorf("filter %q: bad expression: %w", id, err)
	}
	def := &filter.Definition{ID: rec.ID, Expression: rec.Expression, Params: rec.Parameters}

	results := make([]TestResult, 0, len(rec.Tests))
	for _, tc := range rec.Tests {
		res := TestResult{Name: tc.Name}

		var input, want any
		if err := json.Unmarshal(tc.Input, &input); err != nil {
			res.Error = "bad input: " + err.Error()
			results = append(results, res)
			continue
		}
		if err := json.Unmarshal(tc.Expected, &want); err != nil {
			res.Error = "bad expected value: " + err.Error()
			results = append(results, res)
			continue
		}

		bound, err := filter.BindParams(ast, def, tc.Params)
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}
		got, err := filter.Eval(bound, input)
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}
		res.Got, res.Want = got, want
		res.Passed = reflect.DeepEqual(normalize(got), normalize(want))
		results = append(results, res)
	}
	return results, nil
}

// normalize round-trips a value through JSON so engine output and stored
// expectations compare on equal footing.
func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// Stats reports catalog health: totals, counts by kind and category, and
// the schema version.
func (s *Store) Stats(ctx context.Context) (map[string]any, error) {
	byKind, err := s.countBy(ctx, "kind")
	if err != nil {
		return nil, err
	}
	byCategory, err := s.countBy(ctx, "category")
	if err != nil {
		return nil, err
	}

	var total, chains int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM filters WHERE is_active = 1").Scan(&total); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM filter_chains WHERE is_active = 1").Scan(&chains); err != nil {
		return nil, err
	}
	var version string
	if err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&version); err != nil {
		return nil, err
	}

	return map[string]any{
		"total_filters":  total,
		"total_chains":   chains,
		"by_kind":        byKind,
		"by_category":    byCategory,
		"schema_version": version,
	}, nil
}

func (s *Store) countBy(ctx context.Context, column string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, COUNT(*) FROM filters WHERE is_active = 1 GROUP BY %s", column, column))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}

// Export dumps every filter and chain as one JSON document.
func (s *Store) Export(ctx context.Context) (map[string]any, error) {
	summaries, err := s.Search(ctx, SearchQuery{})
	if err != nil {
		return nil, err
	}
	filters := make([]*FilterRecord, 0, len(summaries))
	for _, sum := range summaries {
		rec, err := s.Detail(ctx, sum.ID)
		if err != nil {
			return nil, err
		}
		filters = append(filters, rec)
	}
	chains, err := s.listChains(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"schema_version": schemaVersion,
		"filters":        filters,
		"chains":         chains,
	}, nil
}
