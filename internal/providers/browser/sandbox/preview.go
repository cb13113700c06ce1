package sandbox

import (
	"github.com/microcosm-cc/bluemonday"
)

// previewPolicy strips scripts, handlers and styles from rendered bodies.
var previewPolicy = bluemonday.UGCPolicy()

// Preview returns a static, sanitized copy of a rendered body, safe to embed in a host page.
func Preview(bodyHTML string) string {
	return previewPolicy.Sanitize(bodyHTML)
}
