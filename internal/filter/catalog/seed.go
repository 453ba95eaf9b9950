package catalog

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
)

//go:embed seed_data/*.json
var seedFS embed.FS

type seedFile struct {
	Filters []FilterRecord `json:"filters"`
	Chains  []ChainRecord  `json:"chains"`
}

// ImportSeed loads the embedded filter library into the catalog. Imports are
// idempotent upserts keyed by id, so re-running on an existing catalog
// refreshes the built-in definitions without touching anything user-added.
// Filters land before chains so chain step validation can see them.
func (s *Store) ImportSeed(ctx context.Context) (filters, chains int, err error) {
	entries, err := seedFS.ReadDir("seed_data")
	if err != nil {
		return 0, 0, fmt.Errorf("reading seed data: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var files []seedFile
	for _, name := range names {
		raw, err := seedFS.ReadFile("seed_data/" + name)
		if err != nil {
			return 0, 0, fmt.Errorf("reading seed file %s: %w", name, err)
		}
		var sf seedFile
		if err := json.Unmarshal(raw, &sf); err != nil {
			return 0, 0, fmt.Errorf("parsing seed file %s: %w", name, err)
		}
		files = append(files, sf)
	}

	for _, sf := range files {
		for _, rec := range sf.Filters {
			rec.IsActive = true
			if err := s.UpsertFilter(ctx, rec); err != nil {
				return filters, chains, err
			}
			filters++
		}
	}
	for _, sf := range files {
		for _, rec := range sf.Chains {
			rec.IsActive = true
			if err := s.UpsertChain(ctx, rec); err != nil {
				return filters, chains, err
			}
			chains++
		}
	}

	if s.log != nil {
		s.log.Info().Int("filters", filters).Int("chains", chains).Msg("filter catalog seeded")
	}
	return filters, chains, nil
}
