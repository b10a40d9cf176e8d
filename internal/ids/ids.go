package ids

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New returns a lexicographically sortable surrogate identifier. ULIDs keep
// index locality in the storage layer while staying opaque to callers.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
