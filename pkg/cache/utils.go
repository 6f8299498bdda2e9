package cache

import (
	"fmt"
	"strings"
)

// ComposeKey joins a prefix and parts into a colon-separated cache key.
func ComposeKey(prefix string, parts ...any) string {
	b := strings.Builder{}
	b.WriteString(prefix)
	for _, p := range parts {
		fmt.Fprintf(&b, ":%v", p)
	}
	return b.String()
}
