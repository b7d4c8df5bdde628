package notify

import "context"

// Broadcaster fans out a "data changed" signal to every connected terminal.
// The kind names what changed ("orders", "registers", ...); terminals refetch
// on their own, there is no payload.
type Broadcaster interface {
	Publish(ctx context.Context, kind string) error
}

type NoopBroadcaster struct{}

func (NoopBroadcaster) Publish(_ context.Context, _ string) error {
	return nil
}
