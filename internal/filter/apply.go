package filter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gowebpki/jcs"
)

// ErrNotFound is returned by catalog lookups for unknown ids.
var ErrNotFound = errors.New("not found")

// ErrInvalidSelection marks Apply failures caused by the caller's filter
// selection or parameters (unknown id, bad chain, missing required
// parameter) rather than by parsing or evaluation.
var ErrInvalidSelection = errors.New("invalid filter selection")

// ParamSpec declares one parameter of a catalog filter.
type ParamSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Default  any    `json:"default,omitempty"`
}

// Definition is a catalog filter as the post-processor consumes it.
type Definition struct {
	ID                 string
	Name               string
	Expression         string
	Kind               string
	Params             []ParamSpec
	EstimatedReduction float64
}

// ChainDefinition is an ordered sequence of filter ids.
type ChainDefinition struct {
	ID    string
	Name  string
	Steps []string
}

// Catalog is the lookup surface the post-processor needs. Implemented by
// the sqlite catalog store.
type Catalog interface {
	FilterByID(ctx context.Context, id string) (*Definition, error)
	ChainByID(ctx context.Context, id string) (*ChainDefinition, error)
	BestReductionFilter(ctx context.Context, endpoint string) (*Definition, error)
}

// ApplyOptions selects how a response is post-processed. At most one of
// FilterID, Expression, and Chain should be set; ReduceResponse with an
// endpoint picks the catalog's strongest reduction filter for it.
type ApplyOptions struct {
	FilterID       string
	Expression     string
	Chain          string
	Params         map[string]any
	ReduceResponse bool
	Endpoint       string
}

// ApplyResult carries the transformed data and the reduction accounting.
type ApplyResult struct {
	Data any
	// Meta holds original_size_bytes, final_size_bytes, reduction_percent,
	// and filters_applied.
	Meta map[string]any
}

type step struct {
	name string
	ast  Node
}

// Apply resolves the requested filters, binds parameters, and runs the data
// through each step in order, reporting canonical-JSON size reduction.
func Apply(ctx context.Context, cat Catalog, data any, opts ApplyOptions) (*ApplyResult, error) {
	steps, err := resolveSteps(ctx, cat, opts)
	if err != nil {
		return nil, err
	}

	originalSize, err := canonicalSize(data)
	if err != nil {
		return nil, err
	}

	cur := data
	applied := make([]string, 0, len(steps))
	for _, s := range steps {
		v, err := Eval(s.ast, cur)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", s.name, err)
		}
		cur = v
		applied = append(applied, s.name)
	}

	finalSize, err := canonicalSize(cur)
	if err != nil {
		return nil, err
	}

	reduction := 0.0
	if originalSize > 0 {
		reduction = math.Round(float64(originalSize-finalSize)/float64(originalSize)*1000) / 10
	}

	return &ApplyResult{
		Data: cur,
		Meta: map[string]any{
			"original_size_bytes": originalSize,
			"final_size_bytes":    finalSize,
			"reduction_percent":   reduction,
			"filters_applied":     applied,
		},
	}, nil
}

func resolveSteps(ctx context.Context, cat Catalog, opts ApplyOptions) ([]step, error) {
	switch {
	case opts.Chain != "":
		return resolveChain(ctx, cat, opts.Chain, opts.Params)
	case opts.FilterID != "":
		s, err := resolveFilter(ctx, cat, opts.FilterID, opts.Params)
		if err != nil {
			return nil, err
		}
		return []step{*s}, nil
	case opts.Expression != "":
		ast, err := Parse(opts.Expression)
		if err != nil {
			return nil, fmt.Errorf("custom filter: %w", err)
		}
		bound, err := Bind(ast, opts.Params)
		if err != nil {
			return nil, fmt.Errorf("custom filter: %w", err)
		}
		return []step{{name: "custom", ast: bound}}, nil
	case opts.ReduceResponse && opts.Endpoint != "":
		def, err := cat.BestReductionFilter(ctx, opts.Endpoint)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return buildSteps(ctx, []*Definition{def}, opts.Params)
	}
	return nil, nil
}

// resolveChain handles the filter_chain argument: a stored chain id, a
// single filter id, or a comma-separated ad-hoc sequence of filter ids.
func resolveChain(ctx context.Context, cat Catalog, chain string, params map[string]any) ([]step, error) {
	ids := splitChain(chain)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty filter chain", ErrInvalidSelection)
	}

	if len(ids) == 1 {
		if def, err := cat.ChainByID(ctx, ids[0]); err == nil {
			ids = def.Steps
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	defs := make([]*Definition, 0, len(ids))
	for _, id := range ids {
		// chains reference filters only; a chain id inside a chain is
		// rejected
		if _, err := cat.ChainByID(ctx, id); err == nil {
			return nil, fmt.Errorf("%w: chain step %q is itself a chain; chains cannot nest", ErrInvalidSelection, id)
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		def, err := cat.FilterByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown filter %q", ErrInvalidSelection, id)
		}
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return buildSteps(ctx, defs, params)
}

func splitChain(chain string) []string {
	parts := strings.Split(chain, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func resolveFilter(ctx context.Context, cat Catalog, id string, params map[string]any) (*step, error) {
	def, err := cat.FilterByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown filter %q", ErrInvalidSelection, id)
	}
	if err != nil {
		return nil, err
	}
	steps, err := buildSteps(ctx, []*Definition{def}, params)
	if err != nil {
		return nil, err
	}
	return &steps[0], nil
}

func buildSteps(_ context.Context, defs []*Definition, params map[string]any) ([]step, error) {
	steps := make([]step, 0, len(defs))
	for _, def := range defs {
		ast, err := Parse(def.Expression)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", def.ID, err)
		}
		bound, err := BindParams(ast, def, params)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step{name: def.ID, ast: bound})
	}
	return steps, nil
}

// BindParams merges caller values over the definition's defaults and binds
// them into the AST. A declared required parameter with no value fails.
func BindParams(ast Node, def *Definition, provided map[string]any) (Node, error) {
	merged := map[string]any{}
	for _, p := range def.Params {
		if p.Default != nil {
			merged[p.Name] = p.Default
		}
	}
	for k, v := range provided {
		merged[k] = v
	}
	for _, p := range def.Params {
		if _, ok := merged[p.Name]; p.Required && !ok {
			return nil, fmt.Errorf("%w: filter %q: missing required parameter %q", ErrInvalidSelection, def.ID, p.Name)
		}
	}
	bound, err := Bind(ast, merged)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", def.ID, err)
	}
	return bound, nil
}

// canonicalSize measures a value's canonical JSON serialization in bytes.
func canonicalSize(v any) (int, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("measuring response size: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		// canonicalization can refuse values plain JSON accepts; fall
		// back to the plain serialization length
		return len(raw), nil
	}
	return len(canon), nil
}
