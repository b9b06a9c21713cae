package ingestion

import (
	"context"
	"log"

	"reflection-token-lab/internal/api"
	"reflection-token-lab/internal/queue"
)

// OperationSource streams journaled operations. Operations may arrive out
// of seq order or more than once; the Runner restores journal order and
// commits each delivery once it is in the mirror journal.
type OperationSource interface {
	Subscribe(ctx context.Context) (<-chan queue.Delivery, error)
}

// EventStream is the part of feed.Client a FeedSource reads.
type EventStream interface {
	Events() <-chan api.Event
}

// FeedSource adapts a websocket feed to an OperationSource.
type FeedSource struct {
	stream EventStream
	logger *log.Logger
}

// NewFeedSource creates a source reading operations from stream.
func NewFeedSource(stream EventStream, logger *log.Logger) *FeedSource {
	if logger == nil {
		logger = log.Default()
	}
	return &FeedSource{stream: stream, logger: logger}
}

// Subscribe converts feed events to operations until ctx is done or the
// stream closes. The feed has no acknowledgement, so commits are no-ops.
func (s *FeedSource) Subscribe(ctx context.Context) (<-chan queue.Delivery, error) {
	events := s.stream.Events()
	out := make(chan queue.Delivery, 100)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					s.logger.Println("feed stream closed")
					return
				}
				op, err := ev.Operation.ToDomain()
				if err != nil {
					s.logger.Printf("skipping feed event seq=%d: %v", ev.Operation.Seq, err)
					continue
				}
				select {
				case out <- queue.NewDelivery(op, nil):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
