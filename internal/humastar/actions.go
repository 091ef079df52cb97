package humastar

import (
	"fmt"
	"net/url"
	"strings"
)

// Action is one operation a resource allows in its current state. It is
// sent as an RFC 8288 Link header with method and title target attributes:
//
//	</api/v1/layers/osm/toggle>; rel="toggle"; method="POST"; title="Hide layer"
type Action struct {
	Rel    string
	Href   string
	Method string
	Title  string
}

// Actor is implemented by response bodies that advertise actions.
type Actor interface {
	Actions() []Action
}

// LinkHeader formats the action as a Link header value.
func (a Action) LinkHeader() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<%s>; rel="%s"`, a.Href, a.Rel)
	if a.Method != "" {
		fmt.Fprintf(&b, `; method="%s"`, a.Method)
	}
	if a.Title != "" {
		fmt.Fprintf(&b, `; title="%s"`, strings.ReplaceAll(a.Title, `"`, `'`))
	}
	return b.String()
}

// ActionDef describes an action on resources of type T. Path is an OpenAPI
// path template whose {id} is replaced by the resource ID. When, if set,
// decides whether a resource offers the action; TitleFor, if set, overrides
// Title per resource.
type ActionDef[T any] struct {
	Rel      string
	Path     string
	Method   string
	Title    string
	When     func(T) bool
	TitleFor func(T) string
}

// ActionsFor returns the actions v offers, in definition order.
func ActionsFor[T any](v T, id string, defs []ActionDef[T]) []Action {
	actions := make([]Action, 0, len(defs))
	for _, d := range defs {
		if d.When != nil && !d.When(v) {
			continue
		}
		title := d.Title
		if d.TitleFor != nil {
			title = d.TitleFor(v)
		}
		actions = append(actions, Action{
			Rel:    d.Rel,
			Href:   strings.ReplaceAll(d.Path, "{id}", url.PathEscape(id)),
			Method: d.Method,
			Title:  title,
		})
	}
	return actions
}

// Href returns the target of the first action with rel, or "".
func Href(actions []Action, rel string) string {
	for _, a := range actions {
		if a.Rel == rel {
			return a.Href
		}
	}
	return ""
}
