// Package appfs embeds the static assets shipped with the binaries.
package appfs

import "embed"

//go:embed assets migrations all:templates
var FS embed.FS
