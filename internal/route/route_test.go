package route

import (
	"strings"
	"testing"
)

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{"valid", Definition{ID: "orders", URI: "http://orders.svc:8080"}, false},
		{"valid https", Definition{ID: "orders", URI: "https://orders.svc"}, false},
		{"empty id", Definition{ID: "  ", URI: "http://orders.svc"}, true},
		{"empty uri", Definition{ID: "orders", URI: ""}, true},
		{"relative uri", Definition{ID: "orders", URI: "/orders"}, true},
		{"scheme only", Definition{ID: "orders", URI: "http://"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRowRoundTrip(t *testing.T) {
	def := Definition{
		ID:  "orders",
		URI: "http://orders.svc:8080",
		Predicates: []Spec{
			{Name: "Path", Args: map[string]string{"pattern": "/orders/**"}},
			{Name: "Method", Args: map[string]string{"method": "GET,POST"}},
		},
		Filters: []Spec{
			{Name: "SetRequestHeader", Args: map[string]string{"name": "X-Region", "value": "eu"}},
		},
		Enabled: true,
	}

	row, err := ToRow(def)
	if err != nil {
		t.Fatalf("ToRow failed: %v", err)
	}
	if row.Filters == "" {
		t.Error("filter blob should be populated")
	}

	got, err := FromRow(row)
	if err != nil {
		t.Fatalf("FromRow failed: %v", err)
	}
	if got.ID != def.ID || got.URI != def.URI || got.Enabled != def.Enabled {
		t.Errorf("scalar fields differ: %+v vs %+v", got, def)
	}
	if len(got.Predicates) != 2 || got.Predicates[0].Arg("pattern") != "/orders/**" {
		t.Errorf("predicates differ: %+v", got.Predicates)
	}
	if len(got.Filters) != 1 || got.Filters[0].Arg("value") != "eu" {
		t.Errorf("filters differ: %+v", got.Filters)
	}
}

func TestToRowEmptyFilters(t *testing.T) {
	row, err := ToRow(Definition{ID: "r", URI: "http://svc", Enabled: true})
	if err != nil {
		t.Fatalf("ToRow failed: %v", err)
	}
	if row.Filters != "" {
		t.Errorf("routes without filters store an empty blob, got %q", row.Filters)
	}
}

func TestFromRowCorruptPredicates(t *testing.T) {
	_, err := FromRow(Row{
		ID:         "broken",
		URI:        "http://svc",
		Predicates: `[{"name": truncated`,
		Enabled:    true,
	})
	if err == nil {
		t.Fatal("corrupt predicate blob must fail to decode")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error should name the route: %v", err)
	}
}

func TestFromRowCorruptFilters(t *testing.T) {
	_, err := FromRow(Row{
		ID:         "broken",
		URI:        "http://svc",
		Predicates: `[]`,
		Filters:    `not json`,
		Enabled:    true,
	})
	if err == nil {
		t.Fatal("corrupt filter blob must fail to decode")
	}
}

func TestFromRowBlankBlobs(t *testing.T) {
	def, err := FromRow(Row{ID: "plain", URI: "http://svc", Enabled: true})
	if err != nil {
		t.Fatalf("blank blobs should decode to empty lists: %v", err)
	}
	if len(def.Predicates) != 0 || len(def.Filters) != 0 {
		t.Errorf("expected empty lists, got %+v", def)
	}
}
