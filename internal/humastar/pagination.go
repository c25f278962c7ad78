// pagination.go: HATEOAS pagination via RFC 8288 Link headers.
//
// Response bodies implement the Pager interface to emit next/prev/first/last
// Link headers. The API link transformer reads these and sets the headers.
package humastar

import (
	"fmt"
	"net/url"
	"strconv"
)

// Pager is implemented by response bodies that carry pagination metadata.
type Pager interface {
	PaginationLinks(u url.URL) []string
}

// PageInput is embeddable query input for paginated list operations.
type PageInput struct {
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Number of items to skip"`
	Limit  int `query:"limit" minimum:"1" maximum:"500" default:"100" doc:"Page size"`
}

// PageBody is a generic paginated response envelope.
type PageBody[T any] struct {
	Total  int `json:"total" doc:"Total number of items"`
	Offset int `json:"offset" doc:"Current offset"`
	Limit  int `json:"limit" doc:"Page size"`
	Data   []T `json:"data" doc:"Items"`
}

// Page slices items according to in. Data is never nil.
func Page[T any](items []T, in PageInput) PageBody[T] {
	limit := in.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := max(in.Offset, 0)

	start := min(offset, len(items))
	end := min(start+limit, len(items))
	data := make([]T, end-start)
	copy(data, items[start:end])

	return PageBody[T]{Total: len(items), Offset: offset, Limit: limit, Data: data}
}

// PaginationLinks returns RFC 8288 Link header values for pagination rels.
// Other query parameters on u are kept.
func (p PageBody[T]) PaginationLinks(u url.URL) []string {
	link := func(offset int, rel string) string {
		q := u.Query()
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(p.Limit))
		u.RawQuery = q.Encode()
		return fmt.Sprintf(`<%s>; rel="%s"`, u.RequestURI(), rel)
	}

	links := []string{link(0, "first")}
	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-p.Limit, 0), "prev"))
	}
	if p.Offset+p.Limit < p.Total {
		links = append(links, link(p.Offset+p.Limit, "next"))
	}
	lastOffset := max(((p.Total-1)/p.Limit)*p.Limit, 0)
	return append(links, link(lastOffset, "last"))
}
