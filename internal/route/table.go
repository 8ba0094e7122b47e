package route

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"

	gwerrors "github.com/tollgate-io/tollgate/internal/errors"
	"github.com/tollgate-io/tollgate/internal/logging"
	"go.uber.org/zap"
)

// CompiledRoute is an enabled route definition with its predicates and
// filters compiled, ready for matching on the hot path.
type CompiledRoute struct {
	Def        Definition
	Dest       *url.URL
	predicates []Predicate
	filters    []Filter
}

// Matches reports whether every predicate matches the request. An empty
// predicate list matches everything.
func (cr *CompiledRoute) Matches(r *http.Request) bool {
	for _, p := range cr.predicates {
		if !p.Matches(r) {
			return false
		}
	}
	return true
}

// ApplyFilters runs the route-scoped filters against the outbound request.
func (cr *CompiledRoute) ApplyFilters(outbound, original *http.Request) {
	for _, f := range cr.filters {
		f.Apply(outbound, original)
	}
}

// Table is the hot-swappable set of active routes. The published snapshot is
// immutable and replaced wholesale on reload; readers never observe partial
// state.
type Table struct {
	store Store
	opts  atomic.Pointer[CompileOptions]
	snap  atomic.Pointer[[]*CompiledRoute]

	// OnReload, if set, is invoked after every completed reload with the
	// number of active routes and the number of rows skipped as corrupt.
	OnReload func(active, skipped int)
}

// NewTable creates a Table over the given store. Call Reload to publish the
// first snapshot.
func NewTable(store Store, opts CompileOptions) *Table {
	t := &Table{store: store}
	t.SetCompileOptions(opts)
	empty := make([]*CompiledRoute, 0)
	t.snap.Store(&empty)
	return t
}

// SetCompileOptions replaces the predicate compile options. Takes effect at
// the next reload. Safe to call concurrently with Reload and Save; a reload
// in flight finishes with the options it started with.
func (t *Table) SetCompileOptions(opts CompileOptions) {
	if opts.BodyFallback == "" {
		opts.BodyFallback = FallbackPermissive
	}
	t.opts.Store(&opts)
}

// Active returns the current snapshot of enabled routes in stable storage
// order. The returned slice must not be mutated.
func (t *Table) Active() []*CompiledRoute {
	return *t.snap.Load()
}

// compile turns a definition into a CompiledRoute, validating the
// destination URI and every predicate and filter definition.
func compile(d Definition, opts CompileOptions) (*CompiledRoute, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	dest, err := url.Parse(d.URI)
	if err != nil {
		return nil, fmt.Errorf("route %s: invalid destination URI: %w", d.ID, err)
	}

	cr := &CompiledRoute{Def: d, Dest: dest}
	for _, spec := range d.Predicates {
		p, err := compilePredicate(spec, opts)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", d.ID, err)
		}
		cr.predicates = append(cr.predicates, p)
	}
	for _, spec := range d.Filters {
		f, err := compileFilter(spec)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", d.ID, err)
		}
		cr.filters = append(cr.filters, f)
	}
	return cr, nil
}

// Reload re-reads all enabled definitions from storage, compiles each row in
// isolation, and atomically replaces the published snapshot. A row that
// fails to deserialize or compile is skipped with a diagnostic; it never
// blocks any other route from loading.
func (t *Table) Reload(ctx context.Context) error {
	rows, err := t.store.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("route table reload failed: %w", err)
	}

	// One options snapshot for the whole reload, so every route in the new
	// snapshot was compiled the same way.
	opts := *t.opts.Load()

	routes := make([]*CompiledRoute, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		def, err := FromRow(row)
		if err != nil {
			logging.Warn("skipping corrupt route definition",
				zap.String("route", row.ID), zap.Error(err))
			skipped++
			continue
		}
		cr, err := compile(def, opts)
		if err != nil {
			logging.Warn("skipping uncompilable route definition",
				zap.String("route", row.ID), zap.Error(err))
			skipped++
			continue
		}
		routes = append(routes, cr)
	}

	t.snap.Store(&routes)
	logging.Info("route table reloaded",
		zap.Int("active", len(routes)), zap.Int("skipped", skipped))
	if t.OnReload != nil {
		t.OnReload(len(routes), skipped)
	}
	return nil
}

// Save validates and upserts a definition, then reloads so subsequent
// lookups see the change. Corrupt definitions are rejected here rather than
// persisted.
func (t *Table) Save(ctx context.Context, d Definition) error {
	if _, err := compile(d, *t.opts.Load()); err != nil {
		return gwerrors.Wrap(err, http.StatusBadRequest, "invalid route definition").
			WithReason(gwerrors.ReasonRouteCorrupt).
			WithDetails(err.Error())
	}
	row, err := ToRow(d)
	if err != nil {
		return gwerrors.Wrap(err, http.StatusBadRequest, "invalid route definition").
			WithReason(gwerrors.ReasonRouteCorrupt).
			WithDetails(err.Error())
	}
	if err := t.store.Upsert(ctx, row); err != nil {
		return err
	}
	return t.Reload(ctx)
}

// Delete removes a definition by id and reloads. No other stored route is
// affected, even one whose serialized form is corrupt.
func (t *Table) Delete(ctx context.Context, id string) error {
	if err := t.store.Delete(ctx, id); err != nil {
		return err
	}
	return t.Reload(ctx)
}

// All returns every stored definition for operator listing. Rows that fail
// to deserialize are returned with empty predicate/filter lists so the
// operator can still see and delete them.
func (t *Table) All(ctx context.Context) ([]Definition, error) {
	rows, err := t.store.List(ctx)
	if err != nil {
		return nil, err
	}
	defs := make([]Definition, 0, len(rows))
	for _, row := range rows {
		def, err := FromRow(row)
		if err != nil {
			def = Definition{ID: row.ID, URI: row.URI, Enabled: row.Enabled}
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Match returns the first active route whose full predicate list matches,
// in snapshot order.
func (t *Table) Match(r *http.Request) (*CompiledRoute, bool) {
	for _, cr := range t.Active() {
		if cr.Matches(r) {
			return cr, true
		}
	}
	return nil, false
}
