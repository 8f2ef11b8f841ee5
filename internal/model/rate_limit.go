package model

import "time"

// RateLimitWindow is the stored fixed-window counter for one client key.
type RateLimitWindow struct {
	Key    string
	Count  int64
	Expiry time.Time
}
