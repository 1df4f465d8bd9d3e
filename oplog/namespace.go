package oplog

import (
	"fmt"
	"strings"
)

const (
	// CommandCollection is the pseudo-collection administrative commands are
	// logged against ("db.$cmd").
	CommandCollection = "$cmd"

	// IndexCollection is the legacy pseudo-collection index definitions are
	// inserted into ("db.system.indexes").
	IndexCollection = "system.indexes"
)

// Namespace is a parsed "database.collection" identifier.
type Namespace struct {
	Database   string
	Collection string
}

// ParseNamespace splits ns on its first period. The collection part may
// itself contain periods.
func ParseNamespace(ns string) (Namespace, error) {
	if strings.TrimSpace(ns) == "" {
		return Namespace{}, fmt.Errorf("%w: namespace not defined", ErrMalformedNamespace)
	}

	db, coll, ok := strings.Cut(ns, ".")
	if db == "" {
		return Namespace{}, fmt.Errorf("%w: database part unavailable in %q", ErrMalformedNamespace, ns)
	}
	if !ok || coll == "" {
		return Namespace{}, fmt.Errorf("%w: collection part unavailable in %q", ErrMalformedNamespace, ns)
	}

	return Namespace{Database: db, Collection: coll}, nil
}

// IsCommand reports whether the namespace targets the command pseudo-collection.
func (n Namespace) IsCommand() bool { return n.Collection == CommandCollection }

// IsIndexCatalog reports whether the namespace targets system.indexes.
func (n Namespace) IsIndexCatalog() bool { return n.Collection == IndexCollection }

func (n Namespace) String() string { return n.Database + "." + n.Collection }
