package models

import (
	"encoding/json"
	"time"
)

// FeedMessage is a single delivery unit from the upstream feed. The Type
// discriminator decides how Data is interpreted; only "tokens" messages carry
// a token batch.
type FeedMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const FeedMessageTokens = "tokens"

// TokenListingEvent represents one token listing as reported by the feed.
// Exchange and Market arrive as raw venue strings and are only normalized at
// comparison time.
type TokenListingEvent struct {
	Token    string `json:"token"`
	Exchange string `json:"exchange"`
	Market   string `json:"market"`
}

// TokenBatch is the ordered payload of one "tokens" feed message. Batches are
// transient and never persisted.
type TokenBatch struct {
	Events     []TokenListingEvent
	ReceivedAt time.Time
}
