// Package messenger connects the conversation tracker to the Messenger
// Platform: it serves the webhook and replies through the Send API.
package messenger

import (
	"errors"
	"fmt"
)

// ErrSignature is returned when a webhook body does not match its signature header.
var ErrSignature = errors.New("messenger: signature mismatch")

// Callback is the webhook POST body.
type Callback struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the events delivered for one page.
type Entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Messaging []Messaging `json:"messaging"`
}

// Messaging is a single webhook event.
type Messaging struct {
	Sender    Party          `json:"sender"`
	Recipient Party          `json:"recipient"`
	Timestamp int64          `json:"timestamp"`
	Message   *InMessage     `json:"message,omitempty"`
	Postback  *PostbackEvent `json:"postback,omitempty"`
}

// Party identifies a sender or recipient by page-scoped id.
type Party struct {
	ID string `json:"id"`
}

// InMessage is an inbound text message.
type InMessage struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo"`
}

// PostbackEvent is delivered when a user taps a postback button.
type PostbackEvent struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// SendRequest is the Send API request body.
type SendRequest struct {
	Recipient Party           `json:"recipient"`
	Message   OutboundMessage `json:"message"`
}

// OutboundMessage is either plain text or a button template.
type OutboundMessage struct {
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Attachment wraps a template payload.
type Attachment struct {
	Type    string          `json:"type"`
	Payload TemplatePayload `json:"payload"`
}

// TemplatePayload is a button template.
type TemplatePayload struct {
	TemplateType string           `json:"template_type"`
	Text         string           `json:"text"`
	Buttons      []PostbackButton `json:"buttons"`
}

// PostbackButton sends Payload back as a postback event when tapped.
type PostbackButton struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// SendResponse is the Send API success body.
type SendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// APIError is a Graph API error response.
type APIError struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	TraceID    string `json:"fbtrace_id"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("messenger: graph error %d (%s): %s (%d)", e.Code, e.Type, e.Message, e.HTTPStatus)
}

// StatusCode exposes the HTTP status for error classification.
func (e *APIError) StatusCode() int {
	return e.HTTPStatus
}
