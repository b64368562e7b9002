package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSenderAddress(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"Shop Billing <noreply@shop.com>", "noreply@shop.com"},
		{"noreply@shop.com", "noreply@shop.com"},
		{"  plain@example.com  ", "plain@example.com"},
		{"Broken <unclosed@example.com", "Broken <unclosed@example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		event := &EmailEvent{From: tt.from}
		assert.Equal(t, tt.want, event.SenderAddress(), "from=%q", tt.from)
	}
}

func TestSenderDomain(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"Shop Billing <noreply@shop.com>", "shop.com"},
		{"user@sub.example.org", "sub.example.org"},
		{"no-at-sign", ""},
		{"", ""},
	}
	for _, tt := range tests {
		event := &EmailEvent{From: tt.from}
		assert.Equal(t, tt.want, event.SenderDomain(), "from=%q", tt.from)
	}
}
