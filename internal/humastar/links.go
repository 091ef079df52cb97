package humastar

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// EntryPath is the API entry point. Its links list every collection.
const EntryPath = "/health"

var pathParam = regexp.MustCompile(`\{([^}]+)\}`)

type link struct {
	rel  string
	href string // may hold {param} templates of the source path
}

// Links is the link graph between REST resources. It is served as RFC 8288
// Link headers by Transformer and documented as OpenAPI response links.
// Panel endpoints are not part of it.
type Links struct {
	mu     sync.RWMutex
	byPath map[string][]link
}

// NewLinks creates an empty graph.
func NewLinks() *Links {
	return &Links{byPath: map[string][]link{}}
}

// Add links responses of the operation at from to href. href may use the
// {params} of from; they are filled in from the request.
func (l *Links) Add(from, rel, href string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.add(from, rel, href)
}

func (l *Links) add(from, rel, href string) {
	for _, existing := range l.byPath[from] {
		if existing.rel == rel && existing.href == href {
			return
		}
	}
	l.byPath[from] = append(l.byPath[from], link{rel: rel, href: href})
}

// Build derives the structural links from the OpenAPI document and records
// all links as response links in it. Call once every route is registered.
//
//   - resources (paths with a GET and a {param}) link to their collection,
//     and the collection links to the resource template as "item"
//   - GET sub-resources (features) are linked from their resource by name
//   - actions under a resource (toggle, opacity) link "up" to it
//   - collections link "up" to EntryPath, which links to every collection
func (l *Links) Build(api huma.API) {
	oapi := api.OpenAPI()
	l.mu.Lock()
	defer l.mu.Unlock()

	var resources, actions, collections []string
	for p, pi := range oapi.Paths {
		if isPanel(pi) {
			continue
		}
		switch {
		case !strings.Contains(p, "{"):
			collections = append(collections, p)
		case pi.Get != nil:
			resources = append(resources, p)
		default:
			actions = append(actions, p)
		}
	}
	sort.Strings(resources)
	sort.Strings(actions)
	sort.Strings(collections)

	for _, r := range resources {
		parent := path.Dir(r)
		if pi, ok := oapi.Paths[parent]; ok && pi.Get != nil {
			if strings.HasSuffix(r, "}") {
				l.add(r, "collection", parent)
				l.add(parent, "item", r)
			} else {
				// Sub-resource of the resource at parent.
				l.add(parent, path.Base(r), r)
				l.add(r, "up", parent)
			}
		}
		if oapi.Paths[r].Put != nil {
			l.add(r, "edit", r)
		}
	}
	for _, a := range actions {
		if pi, ok := oapi.Paths[path.Dir(a)]; ok && pi.Get != nil {
			l.add(a, "up", path.Dir(a))
		}
	}

	for _, c := range collections {
		if c == EntryPath {
			continue
		}
		l.add(c, "up", EntryPath)
		if oapi.Paths[c].Get != nil && path.Dir(c) == "/api/v1" {
			l.add(EntryPath, path.Base(c), c)
		}
	}
	l.add(EntryPath, "service-desc", "/openapi.json")
	l.add(EntryPath, "service-doc", "/docs")

	for p, pi := range oapi.Paths {
		if ref := responseSchema(pi); ref != "" {
			l.add(p, "describedby", "/openapi.json#/components/schemas/"+ref)
		}
	}

	for p, links := range l.byPath {
		pi, ok := oapi.Paths[p]
		if !ok {
			continue
		}
		for _, op := range []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete} {
			if op != nil {
				documentLinks(op, links)
			}
		}
	}
}

// Transformer adds the graph's links for the matched operation, a self link
// for parameterized paths, and the links of Pager and Actor bodies.
func (l *Links) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		l.mu.RLock()
		links := l.byPath[op.Path]
		l.mu.RUnlock()
		for _, lk := range links {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="%s"`, expand(lk.href, op.Path, ctx), lk.rel))
		}

		u := ctx.URL()
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, u.Path))
		}
		if p, ok := v.(Pager); ok {
			for _, h := range p.PaginationLinks(u) {
				ctx.AppendHeader("Link", h)
			}
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

// Root returns the entry point links as header values, for handlers that
// are not Huma operations.
func (l *Links) Root() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []string
	for _, lk := range l.byPath[EntryPath] {
		out = append(out, fmt.Sprintf(`<%s>; rel="%s"`, lk.href, lk.rel))
	}
	return out
}

// expand fills the {params} of href that also appear in the operation path.
// Others are left as URI template variables.
func expand(href, opPath string, ctx huma.Context) string {
	for _, m := range pathParam.FindAllStringSubmatch(opPath, -1) {
		if v := ctx.Param(m[1]); v != "" {
			href = strings.ReplaceAll(href, m[0], v)
		}
	}
	return href
}

func isPanel(pi *huma.PathItem) bool {
	for _, op := range []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete} {
		if op == nil {
			continue
		}
		for _, t := range op.Tags {
			if t == PanelTag {
				return true
			}
		}
	}
	return false
}

// documentLinks records links on the operation's success response.
func documentLinks(op *huma.Operation, links []link) {
	var resp *huma.Response
	for code, r := range op.Responses {
		if strings.HasPrefix(code, "2") {
			resp = r
			break
		}
	}
	if resp == nil {
		return
	}
	if resp.Links == nil {
		resp.Links = map[string]*huma.Link{}
	}
	for _, lk := range links {
		resp.Links[lk.rel] = &huma.Link{
			OperationRef: lk.href,
			Description:  "Related: " + lk.rel,
		}
	}
}

// responseSchema returns the schema name of the GET success body.
func responseSchema(pi *huma.PathItem) string {
	if pi.Get == nil {
		return ""
	}
	for code, resp := range pi.Get.Responses {
		if !strings.HasPrefix(code, "2") {
			continue
		}
		for _, mt := range resp.Content {
			if mt.Schema != nil && mt.Schema.Ref != "" {
				return path.Base(mt.Schema.Ref)
			}
		}
	}
	return ""
}
