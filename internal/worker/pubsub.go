package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

var (
	// ErrMalformedMessage is returned for message bodies that are not a job.
	ErrMalformedMessage = errors.New("malformed job message")
	// ErrUnknownJobType is returned for jobs this worker does not run.
	ErrUnknownJobType = errors.New("unknown job type")
)

// JobMessage is the body of a worker Pub/Sub message.
type JobMessage struct {
	JobType string   `json:"job_type"`
	Queries []string `json:"queries,omitempty"`
}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	warmJob          *WarmJob
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	WarmJob          *WarmJob
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	h := NewHandler(cfg.WarmJob, cfg.Logger)
	h.client = client
	h.subscriber = subscriber
	h.subscriptionName = cfg.SubscriptionName
	return h, nil
}

// NewHandler creates a handler that is not attached to a subscription.
// Messages are fed to it through Process.
func NewHandler(job *WarmJob, logger zerolog.Logger) *PubSubHandler {
	return &PubSubHandler{
		warmJob: job,
		logger:  logger,
	}
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	if h.subscriber == nil {
		return errors.New("handler has no subscription")
	}

	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, h.handleMessage)
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	if h.client == nil {
		return nil
	}
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := h.Process(ctx, msg.Data)
	switch {
	case errors.Is(err, ErrUnknownJobType), errors.Is(err, ErrMalformedMessage):
		// redelivery would not help
		logger.Warn().Err(err).Msg("dropping message")
		msg.Ack()
		return
	case err != nil:
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
		return
	}

	logger.Info().
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")

	msg.Ack()
}

// Process runs the job encoded in data.
func (h *PubSubHandler) Process(ctx context.Context, data []byte) error {
	var job JobMessage
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch job.JobType {
	case JobTypeGeocodeWarm:
		return h.handleGeocodeWarm(ctx, job)
	case JobTypeHealthCheck:
		return h.handleHealthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, job.JobType)
	}
}

func (h *PubSubHandler) handleGeocodeWarm(ctx context.Context, job JobMessage) error {
	result := h.warmJob.Run(ctx, job.Queries)

	// addresses that simply do not exist are not worth a redelivery
	if retryable := result.RetryableFailures(); retryable > result.Resolved {
		return fmt.Errorf("too many warm-up failures: %d/%d", retryable, result.Total)
	}
	return nil
}

func (h *PubSubHandler) handleHealthCheck(ctx context.Context) error {
	h.logger.Debug().Msg("running health check")

	result := h.warmJob.Run(ctx, []string{HealthCheckQuery})
	if result.Resolved != 1 {
		return fmt.Errorf("health check failed: %d errors", result.Failed)
	}

	h.logger.Debug().Msg("health check passed")
	return nil
}

// Publisher sends warm-up jobs to the worker topic.
type Publisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topic     string
	logger    zerolog.Logger
}

// PublisherConfig holds configuration for the Publisher.
type PublisherConfig struct {
	ProjectID string
	Topic     string
	Logger    zerolog.Logger
}

// NewPublisher creates a publisher for cfg.Topic.
func NewPublisher(ctx context.Context, cfg PublisherConfig) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &Publisher{
		client:    client,
		publisher: client.Publisher(cfg.Topic),
		topic:     cfg.Topic,
		logger:    cfg.Logger,
	}, nil
}

// PublishGeocodeWarm publishes a geocode_warm job and waits for the server
// to accept it.
func (p *Publisher) PublishGeocodeWarm(ctx context.Context, queries []string) error {
	data, err := EncodeGeocodeWarm(queries)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	id, err := p.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"job_type": JobTypeGeocodeWarm},
	}).Get(ctx)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", p.topic, err)
	}

	p.logger.Debug().
		Str("message_id", id).
		Str("topic", p.topic).
		Msg("published geocode warm-up job")
	return nil
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

// EncodeGeocodeWarm builds the message body for queries. It returns nil
// when no query is left after de-duplication.
func EncodeGeocodeWarm(queries []string) ([]byte, error) {
	queries = UniqueQueries(queries)
	if len(queries) == 0 {
		return nil, nil
	}
	return json.Marshal(JobMessage{JobType: JobTypeGeocodeWarm, Queries: queries})
}
