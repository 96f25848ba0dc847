package classify

import (
	"strings"
	"sync/atomic"
)

// Classifier maps single lines to structural markers. It is safe for
// concurrent use; the table may be swapped while classification runs.
type Classifier struct {
	table atomic.Pointer[Table]
}

func New(table *Table) *Classifier {
	if table == nil {
		table = DefaultTable()
	}
	c := &Classifier{}
	c.table.Store(table)
	return c
}

// Swap installs a new table for subsequent lines. A nil table is ignored.
func (c *Classifier) Swap(table *Table) {
	if table != nil {
		c.table.Store(table)
	}
}

// Snapshot returns a classifier pinned to the current table, so one document
// is never classified against two vocabularies.
func (c *Classifier) Snapshot() *Classifier {
	return New(c.table.Load())
}

// Classify tests the line against every category in priority order; the
// first matching rule wins.
func (c *Classifier) Classify(line string) Marker {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Marker{Kind: NoMatch}
	}
	for _, cat := range c.table.Load().categories {
		for _, m := range cat.matchers {
			capture, ok := m.Match(trimmed)
			if !ok {
				continue
			}
			return Marker{
				Kind:   cat.kind,
				Rule:   m.Name,
				Number: capture["number"],
				Name:   capture["name"],
				Field:  cat.field,
				Value:  capture["value"],
			}
		}
	}
	return Marker{Kind: NoMatch}
}

// HandoutEnd reports whether line closes an open multi-line handout and
// returns the text that precedes the closing marker.
func (c *Classifier) HandoutEnd(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	for _, m := range c.table.Load().handoutClose {
		if capture, ok := m.Match(trimmed); ok {
			return capture["value"], true
		}
	}
	return "", false
}
