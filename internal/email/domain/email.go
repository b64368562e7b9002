package domain

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// TokenUpdateFunc is called when the Gmail OAuth token is refreshed so the
// new token can be persisted for the user
type TokenUpdateFunc func(token *oauth2.Token) error

// EmailEvent is an immutable snapshot of an incoming email used for rule
// evaluation. It is built from the Gmail message by the provider client and
// never written back
type EmailEvent struct {
	MessageID     string    `json:"message_id"`
	ThreadID      string    `json:"thread_id"`
	Subject       string    `json:"subject"`
	Snippet       string    `json:"snippet"`
	Body          string    `json:"body"`
	From          string    `json:"from"`
	To            []string  `json:"to"`
	ReceivedAt    time.Time `json:"received_at"`
	IsRead        bool      `json:"is_read"`
	HasAttachment bool      `json:"has_attachment"`
	Labels        []string  `json:"labels"`
}

// SenderAddress returns the bare address from a "Name <addr>" From header
func (e *EmailEvent) SenderAddress() string {
	from := e.From
	if start := strings.Index(from, "<"); start >= 0 {
		if end := strings.Index(from[start:], ">"); end > 0 {
			return strings.TrimSpace(from[start+1 : start+end])
		}
	}
	return strings.TrimSpace(from)
}

// SenderDomain returns the part of the sender address after '@', or ""
func (e *EmailEvent) SenderDomain() string {
	addr := e.SenderAddress()
	if idx := strings.LastIndex(addr, "@"); idx >= 0 {
		return addr[idx+1:]
	}
	return ""
}
