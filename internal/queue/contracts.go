package queue

import (
	"context"

	"github.com/a2v/audio2video-back/internal/domain"
)

// Producer sends conversion jobs to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, message domain.QueueMessage) error
}

// Consumer receives conversion jobs and executes handlers.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, domain.QueueMessage) error) error
}
