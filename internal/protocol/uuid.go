package protocol

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateEventID returns a new hex-encoded 128 bit random identifier in the
// 32-character form the ingestion API expects (no dashes).
func GenerateEventID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
