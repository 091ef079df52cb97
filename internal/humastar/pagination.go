package humastar

import (
	"fmt"
	"net/url"
	"strconv"
)

// Pager is implemented by response bodies that are one page of a list.
type Pager interface {
	PaginationLinks(u url.URL) []string
}

// PageBody is one page of a list. Returning it from a handler adds
// first/prev/next/last Link headers.
type PageBody[T any] struct {
	Total  int `json:"total" doc:"Total number of items"`
	Offset int `json:"offset" doc:"Index of the first item on this page"`
	Limit  int `json:"limit" doc:"Page size"`
	Data   []T `json:"data" doc:"Items"`
}

// PaginationLinks returns Link header values for the pages around this one.
// Query parameters of u other than offset and limit are kept.
func (p PageBody[T]) PaginationLinks(u url.URL) []string {
	if p.Limit <= 0 {
		return nil
	}
	page := func(offset int, rel string) string {
		q := u.Query()
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(p.Limit))
		ref := url.URL{Path: u.Path, RawQuery: q.Encode()}
		return fmt.Sprintf(`<%s>; rel="%s"`, ref.String(), rel)
	}

	links := []string{page(0, "first")}
	if p.Offset > 0 {
		links = append(links, page(max(0, p.Offset-p.Limit), "prev"))
	}
	if p.Offset+p.Limit < p.Total {
		links = append(links, page(p.Offset+p.Limit, "next"))
	}
	last := max(0, (p.Total-1)/p.Limit*p.Limit)
	return append(links, page(last, "last"))
}
