// Package transport defines the platform-neutral messaging types shared by
// the delivery pipeline, the renderer and the logging alert sink.
//
// shopwatch only ever sends; there is no update intake.
package transport

import "context"

type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender is the minimal surface needed to push one text message to a chat.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Adapter is a platform client with a lifecycle.
type Adapter interface {
	Sender
	Stop(ctx context.Context) error
}
