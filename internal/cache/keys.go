package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// AnalyzeQuotaKey counts analyze triggers per API key per hour window.
func AnalyzeQuotaKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:analyze:%s", keyPrefix)
}

func RunLockKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("run:lock:%s", sessionID)
}

func RunSnapshotKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("run:snapshot:%s", sessionID)
}
