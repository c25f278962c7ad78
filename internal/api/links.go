package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-trees/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/trees>; rel="trees"`,
		`</api/v1/owners>; rel="owners"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/trees>; rel="trees"`,
	},
	"/api/v1/trees": {
		`</api/v1/owners>; rel="owners"`,
		`</api/v1/visible>; rel="visible"`,
	},
	"/api/v1/trees/{id}": {
		`</api/v1/trees>; rel="collection"`,
	},
	"/api/v1/owners": {
		`</api/v1/trees>; rel="trees"`,
	},
	"/api/v1/owners/{email}/focus": {
		`</api/v1/owners>; rel="collection"`,
		`</api/v1/visible>; rel="visible"`,
	},
	"/api/v1/visible": {
		`</api/v1/navigate>; rel="navigate"`,
	},
	"/api/v1/tables": {
		`</api/v1/query>; rel="query"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		if pager, ok := v.(humastar.Pager); ok {
			for _, link := range pager.PaginationLinks(ctx.URL()) {
				ctx.AppendHeader("Link", link)
			}
		}

		return v, nil
	}
}
