// Package web embeds the viewer page, its fragment templates and static
// assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates
var templates embed.FS

//go:embed static
var static embed.FS

// Templates returns the template tree: viewer.html plus fragments/*.html.
func Templates() fs.FS {
	sub, _ := fs.Sub(templates, "templates")
	return sub
}

// Static returns the js/ and css/ assets served under /static/.
func Static() fs.FS {
	sub, _ := fs.Sub(static, "static")
	return sub
}
