package sqlitestore

import (
	"fmt"
	"strings"
)

// splitPropertyKey splits the "<parent-uuid>/<name>" rendering produced by
// ident.PropertyId.String(). The parent NodeId's canonical UUID form never
// contains '/', so the first '/' is always the separator.
func splitPropertyKey(key string) (parent, name string, err error) {
	idx := strings.IndexByte(key, '/')
	if idx < 0 {
		return "", "", fmt.Errorf("sqlitestore: malformed property key %q", key)
	}
	return key[:idx], key[idx+1:], nil
}
