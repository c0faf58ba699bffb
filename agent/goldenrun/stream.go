package goldenrun

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	pulsestreaming "goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"
)

// pulseClient narrows goa.design/pulse/streaming to the one operation this
// streamer needs, so it can be swapped for a fake in tests.
type pulseClient interface {
	NewStream(name string, opts ...streamopts.Stream) (pulseStream, error)
}

type pulseStream interface {
	Add(ctx context.Context, event string, payload []byte) (string, error)
}

// redisPulseClient adapts goa.design/pulse/streaming's concrete API to
// pulseClient.
type redisPulseClient struct {
	redis *redis.Client
}

// NewRedisPulseClient constructs a pulse-backed client from a Redis
// connection, the layering goa.design/pulse deployments use: build a Redis
// client, hand it to Pulse, publish through the returned stream handle.
func NewRedisPulseClient(rdb *redis.Client) *redisPulseClient {
	return &redisPulseClient{redis: rdb}
}

func (c *redisPulseClient) NewStream(name string, opts ...streamopts.Stream) (pulseStream, error) {
	s, err := pulsestreaming.NewStream(name, c.redis, opts...)
	if err != nil {
		return nil, err
	}
	return pulseStreamAdapter{stream: s}, nil
}

type pulseStreamAdapter struct {
	stream *pulsestreaming.Stream
}

func (a pulseStreamAdapter) Add(ctx context.Context, event string, payload []byte) (string, error) {
	return a.stream.Add(ctx, event, payload)
}

// envelope wraps a published decision or loop episode for transmission.
type envelope struct {
	Type      string         `json:"type"`
	RunID     string         `json:"run_id"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   any            `json:"payload,omitempty"`
}

// PulseStreamer is a best-effort live fan-out of recorded decisions and
// loop-detected episodes, for an operator dashboard subscribed to the
// stream. Publish failures are swallowed: this is an enrichment, never a
// durability guarantee (the on-disk artifact remains authoritative).
type PulseStreamer struct {
	client pulseClient
}

// NewPulseStreamer constructs a Streamer publishing through client.
func NewPulseStreamer(client pulseClient) *PulseStreamer {
	return &PulseStreamer{client: client}
}

// PublishDecision publishes a single execution decision to the run's stream.
func (p *PulseStreamer) PublishDecision(ctx context.Context, runID string, d ExecutionDecision) {
	p.publish(ctx, runID, "decision", d)
}

// PublishLoopDetected publishes a loop_detected_episode_v1 payload.
func (p *PulseStreamer) PublishLoopDetected(ctx context.Context, runID string, payload map[string]any) {
	p.publish(ctx, runID, "loop_detected_episode_v1", payload)
}

func (p *PulseStreamer) publish(ctx context.Context, runID, eventType string, payload any) {
	stream, err := p.client.NewStream(fmt.Sprintf("goldenrun/%s", runID))
	if err != nil {
		return
	}
	env := envelope{Type: eventType, RunID: runID, Timestamp: time.Now().UTC(), Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	_, _ = stream.Add(ctx, eventType, data)
}

var _ Streamer = (*PulseStreamer)(nil)
