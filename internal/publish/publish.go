// Package publish hands finished scan snapshots to their consumers: the
// sim_data.json file and, when configured, MQTT, Pub/Sub and AMQP.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"simscan/internal/sim"
)

// Sink receives finished snapshots.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snap *sim.Snapshot) error
}

// Multi publishes to every sink in turn. A failing sink does not stop the
// others; all failures are returned joined.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) Publish(ctx context.Context, snap *sim.Snapshot) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, snap); err != nil {
			log.Printf("publish: %s: snapshot %s: %v", s.Name(), snap.ID, err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// encodeSnapshot is the wire form shared by the message sinks.
func encodeSnapshot(snap *sim.Snapshot) ([]byte, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return payload, nil
}
