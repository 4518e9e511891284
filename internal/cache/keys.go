package cache

import (
	"strconv"
	"time"
)

const keyPrefix = "webgenie:"

func JobStatusKey(jobID string) string {
	return keyPrefix + "job:" + jobID + ":status"
}

func SummaryKey(jobID string) string {
	return keyPrefix + "summary:" + jobID
}

// RateLimitKey names the counter for clientID in the fixed window that
// contains now. window must be at least a second.
func RateLimitKey(clientID string, now time.Time, window time.Duration) string {
	slot := now.Unix() / int64(window/time.Second)
	return keyPrefix + "ratelimit:" + clientID + ":" + strconv.FormatInt(slot, 10)
}
