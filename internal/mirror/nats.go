package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/lamim/quizforge/pkg/models"
)

const (
	// StreamName is the JetStream stream holding mirrored items
	StreamName = "QUIZ_ITEMS"
	// SubjectPrefix is followed by the item category
	SubjectPrefix = "quizforge.items."
)

// publisher is the part of jetstream.JetStream the mirror uses
type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATS publishes every item to a JetStream subject per category
type NATS struct {
	nc      *nats.Conn
	js      publisher
	timeout time.Duration
	logger  *slog.Logger
}

// NewNATS connects to url and ensures the item stream exists
func NewNATS(url string, timeout time.Duration, logger *slog.Logger) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("quizforge"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectPrefix + ">"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		logger.Warn("Failed to ensure item stream", "stream", StreamName, "error", err)
	}

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATS{nc: nc, js: js, timeout: timeout, logger: logger}, nil
}

// Mirror publishes the record with the fingerprint as message id so
// redelivered items are dropped by the stream
func (n *NATS) Mirror(ctx context.Context, item *models.Item) error {
	data, err := json.Marshal(NewRecord(item))
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	subject := SubjectPrefix + string(item.Category)
	if _, err := n.js.Publish(ctx, subject, data, jetstream.WithMsgID(item.Fingerprint)); err != nil {
		return fmt.Errorf("failed to publish item to subject %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the connection
func (n *NATS) Close() error {
	if n.nc == nil {
		return nil
	}
	if err := n.nc.Drain(); err != nil {
		n.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
