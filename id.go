package vesper

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562). The
// store never trusts caller-supplied ids — every create operation mints
// its own via NewID or NewSkillID.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewSkillID generates a skill id matching the ^skill_[a-z0-9_]+$ format
// validated at the boundary (see package validate).
func NewSkillID() string {
	raw := strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")
	return "skill_" + raw
}

// NowUnix returns the current time as Unix seconds (UTC).
func NowUnix() int64 {
	return time.Now().UTC().Unix()
}
