package utils

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Checkpoint IDs within one millisecond must still sort in mint order; a
// shared monotonic entropy source guarantees that, at the cost of a lock.
var (
	checkpointMu      sync.Mutex
	checkpointEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewThreadID returns a new workflow thread identifier.
func NewThreadID() string {
	return "thread-" + uuid.NewString()
}

// NewMessageID returns a stable identifier for a conversation message.
func NewMessageID() string {
	return "msg-" + uuid.NewString()
}

// NewCheckpointID returns a lexicographically sortable checkpoint identifier.
// ULIDs sort by creation time, which keeps checkpoint listings in step order.
func NewCheckpointID() string {
	checkpointMu.Lock()
	defer checkpointMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), checkpointEntropy).String()
}

// SanitizeIdentifier makes an identifier safe for filesystem paths.
func SanitizeIdentifier(id string) string {
	sanitized := strings.ReplaceAll(id, ":", "-")
	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	sanitized = strings.ReplaceAll(sanitized, "/", "-")
	sanitized = strings.ReplaceAll(sanitized, "\\", "-")
	return sanitized
}
