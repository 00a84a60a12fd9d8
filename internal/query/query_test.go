package query

import (
	"strings"
	"testing"
	"time"
)

func TestResolve_DefaultOrdering(t *testing.T) {
	c := Resolve(Params{})
	if got := c.OrderBy(); got != "ORDER BY received_at DESC, id DESC" {
		t.Fatalf("unexpected default order %q", got)
	}
	if where, args := c.Where(); where != "" || args != nil {
		t.Fatalf("default criteria must not filter, got %q %v", where, args)
	}
}

func TestResolve_AscendingReceivedAt(t *testing.T) {
	c := Resolve(Params{Sort: "received_at", Order: "asc"})
	if got := c.OrderBy(); got != "ORDER BY received_at ASC, id ASC" {
		t.Fatalf("unexpected order %q", got)
	}
}

func TestResolve_SortByInitiator(t *testing.T) {
	c := Resolve(Params{Sort: "initiator"})
	if got := c.OrderBy(); got != "ORDER BY initiator DESC, id DESC" {
		t.Fatalf("unexpected order %q", got)
	}
}

func TestResolve_InvalidFallsBackToDefault(t *testing.T) {
	cases := []Params{
		{Sort: "ip_address", URL: "example"},
		{Order: "sideways", Search: "x"},
		{DateFrom: "yesterday", Search: "x"},
		{DateTo: "2024-13-45", URL: "x", Order: "asc"},
	}
	for _, p := range cases {
		c := Resolve(p)
		if c.OrderBy() != Default().OrderBy() {
			t.Fatalf("%+v: expected default ordering, got %q", p, c.OrderBy())
		}
		if where, _ := c.Where(); where != "" {
			t.Fatalf("%+v: expected unfiltered result, got %q", p, where)
		}
	}
}

func TestWhere_SearchIsORedAcrossTextColumns(t *testing.T) {
	c := Resolve(Params{Search: "  login  "})
	where, args := c.Where()

	if len(args) != 1 || args[0] != "%login%" {
		t.Fatalf("unexpected args %v", args)
	}
	for _, col := range []string{`"time" ILIKE $1`, "url ILIKE $1", "employee ILIKE $1", `"type" ILIKE $1`, "response_time ILIKE $1"} {
		if !strings.Contains(where, col) {
			t.Fatalf("search clause missing %q: %s", col, where)
		}
	}
	if strings.Count(where, " OR ") != len(TextColumns)-1 {
		t.Fatalf("expected %d OR terms: %s", len(TextColumns)-1, where)
	}
}

func TestWhere_DimensionsAreANDed(t *testing.T) {
	from := "2024-02-01T08:00"
	to := "2024-02-02"
	c := Resolve(Params{
		Search:      "x",
		IPAddress:   "10.0.",
		DateFrom:    from,
		DateTo:      to,
		URL:         "intranet",
		Initiator:   "chrome",
		RequestBody: "token",
		HTML:        "<form",
		Employee:    []string{"alice", " ", "bob"},
	})
	where, args := c.Where()

	wantConds := []string{
		"ip_address ILIKE $2",
		"received_at >= $3",
		"received_at <= $4",
		"url ILIKE $5",
		"initiator ILIKE $6",
		"encode(request_body, 'escape') ILIKE $7",
		"encode(html, 'escape') ILIKE $8",
		"employee = ANY($9)",
	}
	for _, cond := range wantConds {
		if !strings.Contains(where, " AND "+cond) {
			t.Fatalf("missing AND %q in %s", cond, where)
		}
	}
	if len(args) != 9 {
		t.Fatalf("expected 9 args, got %d: %v", len(args), args)
	}
	if got := args[2].(time.Time); !got.Equal(time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date_from %v", got)
	}
	if got := args[3].(time.Time); !got.Equal(time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date_to %v", got)
	}
	employees := args[8].([]string)
	if len(employees) != 2 || employees[0] != "alice" || employees[1] != "bob" {
		t.Fatalf("unexpected employees %v", employees)
	}
}

func TestWhere_EscapesLikeMetacharacters(t *testing.T) {
	c := Resolve(Params{URL: `50%_off\now`})
	_, args := c.Where()
	if args[0] != `%50\%\_off\\now%` {
		t.Fatalf("unexpected pattern %v", args[0])
	}
}

func TestPaginate(t *testing.T) {
	cases := []struct {
		total     int
		requested string
		number    int
		numPages  int
		offset    int
	}{
		{0, "", 1, 1, 0},
		{3, "1", 1, 1, 0},
		{25, "2", 1, 1, 0},
		{26, "2", 2, 2, 25},
		{100, "abc", 1, 4, 0},
		{100, "99", 4, 4, 75},
		{100, "0", 4, 4, 75},
		{100, "3", 3, 4, 50},
	}
	for _, tc := range cases {
		p := Paginate(tc.total, tc.requested)
		if p.Number != tc.number || p.NumPages != tc.numPages || p.Offset != tc.offset || p.Limit != PageSize {
			t.Fatalf("Paginate(%d, %q) = %+v", tc.total, tc.requested, p)
		}
	}
	if p := Paginate(60, "2"); !p.HasNext() || !p.HasPrevious() {
		t.Fatalf("middle page should have neighbours: %+v", p)
	}
}
