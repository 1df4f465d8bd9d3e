package publisher

import (
	"fmt"

	"github.com/gobwas/glob"
)

// GlobFilter filters events using glob patterns
type GlobFilter struct {
	collectionGlobs []glob.Glob
	databaseGlobs   []glob.Glob
}

// NewGlobFilter creates a new glob-based filter
// Empty patterns match everything
func NewGlobFilter(collectionPatterns, dbPatterns []string) (*GlobFilter, error) {
	filter := &GlobFilter{
		collectionGlobs: make([]glob.Glob, 0, len(collectionPatterns)),
		databaseGlobs:   make([]glob.Glob, 0, len(dbPatterns)),
	}

	for _, pattern := range collectionPatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid collection pattern %q: %w", pattern, err)
		}
		filter.collectionGlobs = append(filter.collectionGlobs, g)
	}

	for _, pattern := range dbPatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid database pattern %q: %w", pattern, err)
		}
		filter.databaseGlobs = append(filter.databaseGlobs, g)
	}

	return filter, nil
}

// Match returns true if the database and collection match the configured
// patterns. Database-level events (empty collection) are matched on the
// database alone.
func (f *GlobFilter) Match(database, collection string) bool {
	if !matchAny(f.databaseGlobs, database) {
		return false
	}
	if collection == "" {
		return true
	}
	return matchAny(f.collectionGlobs, collection)
}

// matchAny is true for an empty pattern list
func matchAny(globs []glob.Glob, s string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}
