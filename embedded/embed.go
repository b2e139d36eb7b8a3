// Package embedded provides the text templates compiled into the utopian
// binary: node file bodies under templates/ and chat prompts under prompts/.
package embedded

import "embed"

// FS contains every embedded template. Paths are "templates/<name>" and
// "prompts/<name>".
//
//go:embed templates/*.tmpl prompts/*.tmpl
var FS embed.FS
