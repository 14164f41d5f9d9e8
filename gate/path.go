package gate

import (
	"path"
	"strings"
)

// CleanPath resolves dot segments and repeated slashes in a request path. The
// result is rooted and keeps a trailing slash.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}
