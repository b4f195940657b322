package model

import "time"

type Statistics struct {
	TotalIncoming int64   `json:"totalIncoming"`
	TotalOutgoing int64   `json:"totalOutgoing"`
	TotalFailed   int64   `json:"totalFailed"`
	SuccessRate   float64 `json:"successRate"`
	TotalMessages int64   `json:"totalMessages"`
}

type RateLimitSnapshot struct {
	Count       int       `json:"count"`
	Limit       int       `json:"limit"`
	Remaining   int       `json:"remaining"`
	WindowStart time.Time `json:"windowStart"`
	ResetAt     time.Time `json:"resetAt"`
}
