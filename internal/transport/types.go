// Package transport defines the chat transport boundary: inbound updates
// and the Adapter interface the rest of the bot sends through.
package transport

import "context"

// Message is an inbound chat message.
//
// ChatID is the conversation the message arrived in (a user's private chat
// or a group); it doubles as the reminder owner id, so group reminders need
// no special casing.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type Update struct {
	Message *Message
}

type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	ParseMode      string // e.g. "Markdown"
	DisablePreview bool
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}
