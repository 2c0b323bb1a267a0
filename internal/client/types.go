package client

import "encoding/json"

// AttachmentPayload is an attachment forwarded with a rank request.
type AttachmentPayload struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Content     string `json:"content"`
	IsDataURL   bool   `json:"is_data_url,omitempty"`
}

// RankRequest is the body of POST {apiBase}/rank.
type RankRequest struct {
	Idea        string              `json:"idea"`
	MaxPersonas int                 `json:"max_personas,omitempty"`
	Attachments []AttachmentPayload `json:"attachments,omitempty"`
}

// RankResponse keeps each result raw so the caller can validate items one
// by one.
type RankResponse struct {
	Results []json.RawMessage `json:"results"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider,omitempty"`
	Circuit  string `json:"circuit,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Event is a message pushed over the analysis websocket.
type Event struct {
	Type              string          `json:"type"`
	Data              json.RawMessage `json:"data,omitempty"`
	Message           string          `json:"message,omitempty"`
	ActiveConnections int             `json:"active_connections,omitempty"`
}

const (
	EventPing             = "ping"
	EventPong             = "pong"
	EventGetStatus        = "get_status"
	EventStatus           = "status"
	EventError            = "error"
	EventAnalysisComplete = "analysis_complete"
)

type WebSocketState string

const (
	WSStateConnecting   WebSocketState = "CONNECTING"
	WSStateConnected    WebSocketState = "CONNECTED"
	WSStateDisconnected WebSocketState = "DISCONNECTED"
	WSStateReconnecting WebSocketState = "RECONNECTING"
	WSStateFailed       WebSocketState = "FAILED"
)

func (s WebSocketState) String() string {
	return string(s)
}
