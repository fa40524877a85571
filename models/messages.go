package models

import "encoding/json"

// Message types delivered to local subscribers. Raw feed messages are relayed
// unchanged and keep their upstream type discriminator.
const (
	MessageConnectionStatus  = "connection_status"
	MessageTradeNotification = "trade_notification"
)

// ConnectionStatusMessage tells subscribers whether the upstream feed
// connection is currently established.
type ConnectionStatusMessage struct {
	Type                string `json:"type"`
	IsExternalConnected bool   `json:"is_external_connected"`
}

func NewConnectionStatusMessage(connected bool) ConnectionStatusMessage {
	return ConnectionStatusMessage{
		Type:                MessageConnectionStatus,
		IsExternalConnected: connected,
	}
}

// TradeNotificationMessage carries the venue name and the raw order response
// of a successful trade submission.
type TradeNotificationMessage struct {
	Type  string          `json:"type"`
	Venue string          `json:"venue"`
	Data  json.RawMessage `json:"data"`
}

func NewTradeNotificationMessage(venue string, data json.RawMessage) TradeNotificationMessage {
	return TradeNotificationMessage{
		Type:  MessageTradeNotification,
		Venue: venue,
		Data:  data,
	}
}
