package query

import "strconv"

// Page describes one slice of a filtered result.
type Page struct {
	Number   int `json:"page"`
	NumPages int `json:"num_pages"`
	Total    int `json:"total"`
	Offset   int `json:"-"`
	Limit    int `json:"-"`
}

func (p Page) HasNext() bool     { return p.Number < p.NumPages }
func (p Page) HasPrevious() bool { return p.Number > 1 }

// Paginate picks the page for a requested number. A missing or non-numeric
// request gives page 1, any out-of-range number gives the last page, and an
// empty result still has one (empty) page.
func Paginate(total int, requested string) Page {
	numPages := (total + PageSize - 1) / PageSize
	if numPages < 1 {
		numPages = 1
	}
	n, err := strconv.Atoi(requested)
	switch {
	case err != nil:
		n = 1
	case n < 1, n > numPages:
		n = numPages
	}
	return Page{
		Number:   n,
		NumPages: numPages,
		Total:    total,
		Offset:   (n - 1) * PageSize,
		Limit:    PageSize,
	}
}
