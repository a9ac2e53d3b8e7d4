// Package portal provides embedded assets for production builds.
package portal

import "embed"

// In dev mode assets are read from disk instead so edits show up without a rebuild.

//go:embed all:frontend/static
var StaticFS embed.FS

//go:embed all:frontend/templates
var TemplateFS embed.FS
