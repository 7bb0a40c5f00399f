package models

import "encoding/json"

// IngestRequest is the raw body of POST /api/ingest. Fields stay as raw JSON
// so that a value of the wrong type is reported as a validation error rather
// than a decode failure.
type IngestRequest struct {
	Source   json.RawMessage `json:"source"`
	Title    json.RawMessage `json:"title"`
	Messages json.RawMessage `json:"messages"`
}

// IngestMessage is one validated message.
type IngestMessage struct {
	Role    Role
	Content string
}

// IngestPayload is an IngestRequest that passed validation. Source is trimmed
// and Title is resolved.
type IngestPayload struct {
	Source   string
	Title    string
	Messages []IngestMessage
}

// IngestResponse is returned with 201 Created.
type IngestResponse struct {
	ConversationID string `json:"conversation_id"`
}
