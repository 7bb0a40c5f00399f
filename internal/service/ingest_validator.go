package service

import (
	"bytes"
	"encoding/json"
	"strings"

	"context-teleporter/backend/internal/models"
)

// Validation messages returned to the client.
const (
	MsgInvalidSource   = "Source must be a non-empty string"
	MsgInvalidMessages = "Messages must be a non-empty array"
	MsgInvalidRole     = "Each message must have a role of 'user' or 'assistant'"
	MsgInvalidContent  = "Each message must have content as a non-empty string"
)

// ValidationError is a rejected ingestion payload. It is always a client
// error and is never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type rawMessage struct {
	Role    json.RawMessage `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ValidateIngest checks req rule by rule and stops at the first failure:
// source, messages, every role, every content. The result keeps the
// submitted message order.
func ValidateIngest(req *models.IngestRequest) (*models.IngestPayload, error) {
	source, ok := decodeString(req.Source)
	source = strings.TrimSpace(source)
	if !ok || source == "" {
		return nil, &ValidationError{Message: MsgInvalidSource}
	}

	var items []json.RawMessage
	if isAbsent(req.Messages) || json.Unmarshal(req.Messages, &items) != nil || len(items) == 0 {
		return nil, &ValidationError{Message: MsgInvalidMessages}
	}

	decoded := make([]rawMessage, len(items))
	for i, item := range items {
		var m rawMessage
		if !isObject(item) || json.Unmarshal(item, &m) != nil {
			return nil, &ValidationError{Message: MsgInvalidRole}
		}
		role, ok := decodeString(m.Role)
		if !ok || !models.Role(role).Valid() {
			return nil, &ValidationError{Message: MsgInvalidRole}
		}
		decoded[i] = m
	}

	out := make([]models.IngestMessage, len(decoded))
	for i, m := range decoded {
		content, ok := decodeString(m.Content)
		if !ok || content == "" {
			return nil, &ValidationError{Message: MsgInvalidContent}
		}
		role, _ := decodeString(m.Role)
		out[i] = models.IngestMessage{Role: models.Role(role), Content: content}
	}

	return &models.IngestPayload{
		Source:   source,
		Title:    resolveTitle(req.Title, source),
		Messages: out,
	}, nil
}

// DefaultTitle is used when the payload has no usable title.
func DefaultTitle(source string) string {
	return "Conversation from " + source
}

func resolveTitle(raw json.RawMessage, trimmedSource string) string {
	if title, ok := decodeString(raw); ok {
		if title = strings.TrimSpace(title); title != "" {
			return title
		}
	}
	return DefaultTitle(trimmedSource)
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// decodeString reports false unless raw is a JSON string.
func decodeString(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", false
	}
	return s, true
}
