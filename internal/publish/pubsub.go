package publish

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"simscan/internal/sim"
)

// PubSubSink publishes snapshots to a Google Cloud Pub/Sub topic. The mode
// and snapshot ID travel as message attributes so subscribers can filter
// without decoding the body.
type PubSubSink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubSink opens a client for projectID and binds topicID.
func NewPubSubSink(ctx context.Context, projectID, topicID string) (*PubSubSink, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return &PubSubSink{client: client, topic: client.Topic(topicID)}, nil
}

func (p *PubSubSink) Name() string { return "pubsub" }

func (p *PubSubSink) Publish(ctx context.Context, snap *sim.Snapshot) error {
	payload, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err = p.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"mode":        string(snap.Mode),
			"snapshot_id": snap.ID,
		},
	}).Get(ctx)
	if err != nil {
		return fmt.Errorf("pubsub publish to %s: %w", p.topic.ID(), err)
	}
	return nil
}

// Close flushes pending messages and releases the client.
func (p *PubSubSink) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
