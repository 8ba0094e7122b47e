// Package route implements the authoritative, hot-swappable route table:
// persisted definitions, compiled predicates and route-scoped filters, and
// an atomically replaced in-memory snapshot.
package route

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Spec is one named, parameterized predicate or filter definition, the unit
// stored in a route's serialized predicate/filter lists.
type Spec struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

// Arg returns the named argument, or "".
func (s Spec) Arg(name string) string {
	return s.Args[name]
}

// Definition is a named forwarding rule.
type Definition struct {
	ID         string `json:"id"`
	URI        string `json:"uri"`
	Predicates []Spec `json:"predicates,omitempty"`
	Filters    []Spec `json:"filters,omitempty"`
	Enabled    bool   `json:"enabled"`
}

// Validate checks the definition's structural invariants: a non-empty id and
// a well-formed absolute destination URI.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("route id must not be empty")
	}
	u, err := url.Parse(d.URI)
	if err != nil {
		return fmt.Errorf("route %s: invalid destination URI: %w", d.ID, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("route %s: destination URI %q must be absolute", d.ID, d.URI)
	}
	return nil
}

// Row is a route definition as persisted: predicate and filter lists are
// opaque serialized blobs, deserialized independently so one corrupt column
// cannot block any other route from loading.
type Row struct {
	ID         string
	URI        string
	Predicates string // JSON-encoded []Spec
	Filters    string // JSON-encoded []Spec, may be empty
	Enabled    bool
}

// ToRow serializes a definition for storage.
func ToRow(d Definition) (Row, error) {
	preds, err := json.Marshal(d.Predicates)
	if err != nil {
		return Row{}, fmt.Errorf("route %s: failed to serialize predicates: %w", d.ID, err)
	}
	row := Row{
		ID:         d.ID,
		URI:        d.URI,
		Predicates: string(preds),
		Enabled:    d.Enabled,
	}
	if len(d.Filters) > 0 {
		filters, err := json.Marshal(d.Filters)
		if err != nil {
			return Row{}, fmt.Errorf("route %s: failed to serialize filters: %w", d.ID, err)
		}
		row.Filters = string(filters)
	}
	return row, nil
}

// FromRow deserializes a stored row. The predicate and filter blobs must
// each independently decode to a valid Spec list.
func FromRow(row Row) (Definition, error) {
	d := Definition{
		ID:      row.ID,
		URI:     row.URI,
		Enabled: row.Enabled,
	}
	if strings.TrimSpace(row.Predicates) != "" {
		if err := json.Unmarshal([]byte(row.Predicates), &d.Predicates); err != nil {
			return Definition{}, fmt.Errorf("route %s: corrupt predicate list: %w", row.ID, err)
		}
	}
	if strings.TrimSpace(row.Filters) != "" {
		if err := json.Unmarshal([]byte(row.Filters), &d.Filters); err != nil {
			return Definition{}, fmt.Errorf("route %s: corrupt filter list: %w", row.ID, err)
		}
	}
	return d, nil
}
