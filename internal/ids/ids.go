package ids

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// New returns "<prefix>_<ULID>", e.g. "batch_01J9ZQ3W6T8C5X11SQTDNCTM1K".
// IDs sort by creation time.
func New(prefix string) string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		panic("ids: empty prefix")
	}
	return prefix + "_" + ulid.Make().String()
}
