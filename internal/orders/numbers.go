package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewNumber renders a human readable order number such as
// ORD-20260412-7K3QZP. The suffix is the tail of a ULID.
func NewNumber(prefix string, now time.Time) string {
	if prefix == "" {
		prefix = "ORD"
	}
	id := ulid.Make().String()
	return fmt.Sprintf("%s-%s-%s", strings.ToUpper(prefix), now.UTC().Format("20060102"), id[len(id)-6:])
}
