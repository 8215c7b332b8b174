// ABOUTME: Revision id generation for saved snapshots using ULIDs with crypto/rand entropy.
// ABOUTME: Monotonic within a process so revisions saved in the same millisecond still sort in order.
package persist

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRevision returns a new, lexically increasing revision id.
func NewRevision() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}
