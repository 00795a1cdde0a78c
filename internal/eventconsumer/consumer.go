// Package eventconsumer implements the generic Kafka consumer framework
// (C7) that every specialized consumer in internal/consumers builds on.
// The state machine and per-message commit/retry shape are grounded on the
// teacher's AgentCommunicator (services/identity-service/.../fraud-detection/
// agent_communication.go): a channel wrapper with an explicit lifecycle,
// one goroutine pumping a buffered channel, and context-driven shutdown.
package eventconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/innovabiz/iam-fraud-core/internal/domain"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/logging"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/metrics"
	"github.com/innovabiz/iam-fraud-core/internal/telemetry/tracing"
)

// State is the consumer lifecycle, one state wider than the teacher's
// implicit initialized/not-initialized channel flag: Created, Initialized,
// Running, Stopping, Stopped.
type State int

const (
	StateCreated State = iota
	StateInitialized
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// PollBudget bounds each FetchMessage call in Run; when it expires with no
// message the loop checks for shutdown and polls again. Decoding and
// handling a fetched message are not bounded by it.
const PollBudget = time.Second

// Handler processes one decoded event. Returning an error causes the
// message to be retried (up to MaxRetries) before it is parked in the
// poison queue, if one is configured.
type Handler func(ctx context.Context, ev domain.NormalizedEvent) error

// Config configures a Consumer.
type Config struct {
	Name           string // used as the metrics/log "consumer" label
	Brokers        []string
	Topic          string
	GroupID        string
	RegionFilter   []string // empty means accept all regions
	MaxRetries     int      // 0 disables retry, message is dropped (counted as failure) on first error
	PoisonTopic    string   // empty disables the poison queue
	ProcessingWindow int    // rolling window size for average-processing-time tracking
}

// Consumer wraps a kafka-go Reader (and optional poison-queue Writer) with
// the lifecycle, region filtering, manual offset commit, and metrics the
// spec requires of every specialized consumer.
type Consumer struct {
	cfg     Config
	reader  *kafka.Reader
	poison  *kafka.Writer
	handler Handler
	logger  *logging.Logger
	tracer  *tracing.Tracer

	mu    sync.Mutex
	state State

	statsMu         sync.Mutex
	processed       int64
	succeeded       int64
	failed          int64
	partitionOffset map[int]int64
	recentDurations []time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Consumer in StateCreated. Call Init then Run.
func New(cfg Config, handler Handler, logger *logging.Logger, tracer *tracing.Tracer) *Consumer {
	if cfg.ProcessingWindow <= 0 {
		cfg.ProcessingWindow = 50
	}
	return &Consumer{
		cfg:             cfg,
		handler:         handler,
		logger:          logger,
		tracer:          tracer,
		state:           StateCreated,
		partitionOffset: make(map[int]int64),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// Init builds the underlying Kafka reader (and poison-queue writer, if
// configured) and transitions Created -> Initialized.
func (c *Consumer) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateCreated {
		return fmt.Errorf("eventconsumer %s: Init called in state %s", c.cfg.Name, c.state)
	}

	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.cfg.Brokers,
		Topic:          c.cfg.Topic,
		GroupID:        c.cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit per message
	})

	if c.cfg.PoisonTopic != "" {
		c.poison = &kafka.Writer{
			Addr:                   kafka.TCP(c.cfg.Brokers...),
			Topic:                  c.cfg.PoisonTopic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		}
	}

	c.state = StateInitialized
	c.logger.InfoCtx(ctx, "consumer initialized", c.logFields()...)
	return nil
}

// Run enters StateRunning and blocks, fetching and dispatching messages
// until the context is canceled or Stop is called.
func (c *Consumer) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInitialized {
		c.mu.Unlock()
		return fmt.Errorf("eventconsumer %s: Run called in state %s", c.cfg.Name, c.state)
	}
	c.state = StateRunning
	c.mu.Unlock()

	defer close(c.doneCh)

	for {
		select {
		case <-ctx.Done():
			return c.transitionToStopped(ctx)
		case <-c.stopCh:
			return c.transitionToStopped(ctx)
		default:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, PollBudget)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.ErrorCtx(ctx, "fetch failed", zap.Error(err))
			continue
		}

		c.handleMessage(ctx, msg)
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) {
	start := time.Now()

	var ev domain.NormalizedEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.recordOutcome(ctx, "decode_error", start, msg)
		c.logger.ErrorCtx(ctx, "malformed event payload discarded")
		_ = c.reader.CommitMessages(ctx, msg) // never retry un-decodable bytes
		return
	}

	if !c.acceptsRegion(ev.RegionCode) {
		c.recordOutcome(ctx, "filtered", start, msg)
		_ = c.reader.CommitMessages(ctx, msg)
		return
	}

	var procErr error
	attempts := c.cfg.MaxRetries + 1 // first try plus up to MaxRetries retries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		procErr = c.tracer.TraceOperation(ctx, "EventConsumer", c.cfg.Name, ev.TenantID, ev.RegionCode, nil,
			func(ctx context.Context) error { return c.handler(ctx, ev) })
		if procErr == nil {
			break
		}
	}

	if procErr != nil {
		c.recordOutcome(ctx, "failure", start, msg)
		c.sendToPoison(ctx, msg, procErr)
		_ = c.reader.CommitMessages(ctx, msg) // commit regardless: poison queue owns retry from here
		return
	}

	c.recordOutcome(ctx, "success", start, msg)
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.ErrorCtx(ctx, "offset commit failed")
	}
}

func (c *Consumer) acceptsRegion(region string) bool {
	if len(c.cfg.RegionFilter) == 0 {
		return true
	}
	for _, r := range c.cfg.RegionFilter {
		if r == region {
			return true
		}
	}
	return false
}

func (c *Consumer) sendToPoison(ctx context.Context, msg kafka.Message, cause error) {
	if c.poison == nil {
		return
	}
	err := c.poison.WriteMessages(ctx, kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers, kafka.Header{
			Key:   "x-failure-reason",
			Value: []byte(cause.Error()),
		}),
	})
	if err != nil {
		c.logger.ErrorCtx(ctx, "failed to park poison message")
	}
}

func (c *Consumer) recordOutcome(ctx context.Context, outcome string, start time.Time, msg kafka.Message) {
	duration := time.Since(start)
	metrics.ConsumerMessagesTotal.WithLabelValues(c.cfg.Name, outcome).Inc()
	metrics.ConsumerProcessingDuration.WithLabelValues(c.cfg.Name).Observe(duration.Seconds())
	metrics.ConsumerLagMessages.WithLabelValues(c.cfg.Name, fmt.Sprintf("%d", msg.Partition)).Set(float64(msg.HighWaterMark - msg.Offset))

	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.processed++
	switch outcome {
	case "success":
		c.succeeded++
	case "filtered":
		// not counted toward success/failure, just total throughput
	default:
		c.failed++
	}
	c.partitionOffset[msg.Partition] = msg.Offset
	c.recentDurations = append(c.recentDurations, duration)
	if len(c.recentDurations) > c.cfg.ProcessingWindow {
		c.recentDurations = c.recentDurations[1:]
	}
}

// Stats is a point-in-time snapshot of consumer throughput.
type Stats struct {
	Processed         int64
	Succeeded         int64
	Failed            int64
	PartitionOffsets  map[int]int64
	AvgProcessingTime time.Duration
}

// Stats returns a snapshot of this consumer's counters.
func (c *Consumer) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	offsets := make(map[int]int64, len(c.partitionOffset))
	for k, v := range c.partitionOffset {
		offsets[k] = v
	}

	var avg time.Duration
	if n := len(c.recentDurations); n > 0 {
		var sum time.Duration
		for _, d := range c.recentDurations {
			sum += d
		}
		avg = sum / time.Duration(n)
	}

	return Stats{
		Processed:         c.processed,
		Succeeded:         c.succeeded,
		Failed:            c.failed,
		PartitionOffsets:  offsets,
		AvgProcessingTime: avg,
	}
}

// Stop requests a graceful shutdown and blocks until Run returns.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	c.mu.Unlock()

	close(c.stopCh)

	select {
	case <-c.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (c *Consumer) transitionToStopped(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()

	var err error
	if c.reader != nil {
		err = c.reader.Close()
	}
	if c.poison != nil {
		if cerr := c.poison.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	c.logger.InfoCtx(ctx, "consumer stopped", c.logFields()...)
	return err
}

// State returns the current lifecycle state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Consumer) logFields() []zap.Field {
	return []zap.Field{
		zap.String("consumer", c.cfg.Name),
		zap.String("topic", c.cfg.Topic),
		zap.String("group_id", c.cfg.GroupID),
	}
}
