package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// PageSize is the fixed number of entries per page.
const PageSize = 25

const (
	SortReceivedAt = "received_at"
	SortInitiator  = "initiator"
)

// TextColumns are the free-text columns the search term is matched against.
var TextColumns = []string{
	"time", "url", "method", "type", "initiator", "tab_id", "request_id",
	"status_code", "source", "response_time", "employee",
}

// dateLayouts are accepted for date_from / date_to, most specific first.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var validate = validator.New()

// Params is the raw filter form as bound from the query string.
type Params struct {
	Sort        string   `query:"sort" validate:"omitempty,oneof=initiator received_at"`
	Order       string   `query:"order" validate:"omitempty,oneof=asc desc"`
	Search      string   `query:"search" validate:"max=1000"`
	IPAddress   string   `query:"ip_address" validate:"max=100"`
	DateFrom    string   `query:"date_from"`
	DateTo      string   `query:"date_to"`
	URL         string   `query:"url" validate:"max=2000"`
	Initiator   string   `query:"initiator" validate:"max=1000"`
	RequestBody string   `query:"request_body" validate:"max=1000"`
	HTML        string   `query:"html" validate:"max=1000"`
	Employee    []string `query:"employee" validate:"dive,max=255"`
	Page        string   `query:"page"`
}

// Criteria is a validated filter and sort specification.
type Criteria struct {
	Search      string
	IPAddress   string
	URL         string
	Initiator   string
	RequestBody string
	HTML        string
	Employees   []string
	From        *time.Time
	To          *time.Time
	SortField   string
	Descending  bool
}

// Default is the unfiltered collection, newest first.
func Default() Criteria {
	return Criteria{SortField: SortReceivedAt, Descending: true}
}

// Criteria validates p and converts it. Text values are trimmed; blank values
// do not filter.
func (p Params) Criteria() (Criteria, error) {
	if err := validate.Struct(p); err != nil {
		return Criteria{}, err
	}
	c := Criteria{
		Search:      strings.TrimSpace(p.Search),
		IPAddress:   strings.TrimSpace(p.IPAddress),
		URL:         strings.TrimSpace(p.URL),
		Initiator:   strings.TrimSpace(p.Initiator),
		RequestBody: strings.TrimSpace(p.RequestBody),
		HTML:        strings.TrimSpace(p.HTML),
		SortField:   SortReceivedAt,
		Descending:  p.Order != "asc",
	}
	if p.Sort != "" {
		c.SortField = p.Sort
	}
	for _, e := range p.Employee {
		if e = strings.TrimSpace(e); e != "" {
			c.Employees = append(c.Employees, e)
		}
	}
	var err error
	if c.From, err = parseDate(p.DateFrom); err != nil {
		return Criteria{}, fmt.Errorf("date_from: %w", err)
	}
	if c.To, err = parseDate(p.DateTo); err != nil {
		return Criteria{}, fmt.Errorf("date_to: %w", err)
	}
	return c, nil
}

// Resolve returns p's criteria, or Default when p does not validate.
func Resolve(p Params) Criteria {
	c, err := p.Criteria()
	if err != nil {
		return Default()
	}
	return c
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q", s)
}

// Where renders the filter as a SQL WHERE clause with positional arguments
// starting at $1. It returns "" and no arguments when nothing filters.
func (c Criteria) Where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if c.Search != "" {
		p := arg(containsPattern(c.Search))
		or := make([]string, 0, len(TextColumns))
		for _, col := range TextColumns {
			or = append(or, fmt.Sprintf("%s ILIKE %s", quote(col), p))
		}
		conds = append(conds, "("+strings.Join(or, " OR ")+")")
	}
	if c.IPAddress != "" {
		conds = append(conds, "ip_address ILIKE "+arg(containsPattern(c.IPAddress)))
	}
	if c.From != nil {
		conds = append(conds, "received_at >= "+arg(*c.From))
	}
	if c.To != nil {
		conds = append(conds, "received_at <= "+arg(*c.To))
	}
	if c.URL != "" {
		conds = append(conds, "url ILIKE "+arg(containsPattern(c.URL)))
	}
	if c.Initiator != "" {
		conds = append(conds, "initiator ILIKE "+arg(containsPattern(c.Initiator)))
	}
	if c.RequestBody != "" {
		conds = append(conds, "encode(request_body, 'escape') ILIKE "+arg(containsPattern(c.RequestBody)))
	}
	if c.HTML != "" {
		conds = append(conds, "encode(html, 'escape') ILIKE "+arg(containsPattern(c.HTML)))
	}
	if len(c.Employees) > 0 {
		conds = append(conds, "employee = ANY("+arg(c.Employees)+")")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// OrderBy renders the sort as a SQL ORDER BY clause. The id tie-breaker keeps
// pages stable when sort values repeat.
func (c Criteria) OrderBy() string {
	field := SortReceivedAt
	if c.SortField == SortInitiator {
		field = SortInitiator
	}
	dir := "ASC"
	if c.Descending {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s, id %s", field, dir, dir)
}

// containsPattern escapes LIKE metacharacters and wraps s in wildcards.
func containsPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func quote(col string) string {
	switch col {
	case "time", "type":
		return `"` + col + `"`
	}
	return col
}
