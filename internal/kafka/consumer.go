package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/go-playground/validator/v10"
	"github.com/skills-gamification/internal/config"
	"github.com/skills-gamification/internal/domain"
)

// WorkoutHandler processes workout completions
type WorkoutHandler interface {
	CompleteWorkout(ctx context.Context, sub domain.WorkoutSubmission) (*domain.WorkoutResult, error)
}

// Consumer consumes workout completion messages from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	processor     *batchProcessor
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler WorkoutHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		processor:     newBatchProcessor(handler, cfg.RetryAttempts, cfg.RetryDelay, logger),
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	<-c.ready
	c.logger.Info("Kafka consumer ready")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// pendingMessage is a consumed message waiting for its batch to flush.
// Messages that failed to decode are kept so their offsets are marked
// in order with the rest.
type pendingMessage struct {
	message *sarama.ConsumerMessage
	sub     domain.WorkoutSubmission
	invalid bool
}

// ConsumeClaim collects messages into batches flushed on size or timeout.
// An offset is marked only once its message and every message before it
// were recorded or rejected for good. A transient failure ends the claim
// so the unmarked messages are redelivered.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	logger := h.consumer.logger
	batch := make([]pendingMessage, 0, cfg.BatchSize)
	valid := 0
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		subs := make([]domain.WorkoutSubmission, 0, valid)
		for _, p := range batch {
			if !p.invalid {
				subs = append(subs, p.sub)
			}
		}

		// not tied to the session so a batch buffered at shutdown or
		// rebalance is still recorded
		settled, err := h.consumer.processor.process(context.Background(), subs)

		if last := lastSettled(batch, settled); last != nil {
			session.MarkMessage(last, "")
		}
		batch = batch[:0]
		valid = 0
		if err != nil {
			return fmt.Errorf("processing batch: %w", err)
		}
		return nil
	}

	for {
		select {
		case <-session.Context().Done():
			if err := flush(); err != nil {
				logger.Error("unrecorded workouts left for redelivery", "error", err)
			}
			return nil

		case <-batchTimer.C:
			if err := flush(); err != nil {
				return err
			}
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				return flush()
			}

			sub, err := DecodeSubmission(message.Value)
			if err != nil {
				logger.Warn("dropping invalid workout message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				batch = append(batch, pendingMessage{message: message, invalid: true})
				continue
			}

			batch = append(batch, pendingMessage{message: message, sub: sub})
			valid++
			if valid >= cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}

// lastSettled returns the last message that may be marked when the first
// settled valid submissions of batch are done
func lastSettled(batch []pendingMessage, settled int) *sarama.ConsumerMessage {
	var last *sarama.ConsumerMessage
	seen := 0
	for _, p := range batch {
		if !p.invalid {
			if seen == settled {
				break
			}
			seen++
		}
		last = p.message
	}
	return last
}

var validate = validator.New()

// DecodeSubmission parses and validates one workout completion message
func DecodeSubmission(value []byte) (domain.WorkoutSubmission, error) {
	var sub domain.WorkoutSubmission
	if err := json.Unmarshal(value, &sub); err != nil {
		return sub, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := validate.Struct(sub); err != nil {
		return sub, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return sub, nil
}

// batchProcessor feeds a batch to the service one completion at a time.
// Completions of one user must stay in order, so batches are not
// fanned out.
type batchProcessor struct {
	handler    WorkoutHandler
	attempts   int
	retryDelay time.Duration
	logger     *slog.Logger
}

func newBatchProcessor(handler WorkoutHandler, attempts int, retryDelay time.Duration, logger *slog.Logger) *batchProcessor {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &batchProcessor{handler: handler, attempts: attempts, retryDelay: retryDelay, logger: logger}
}

// process records the batch in order. It returns how many leading
// submissions are settled, either recorded or rejected for good, and
// stops at the first one that still fails after its retries.
func (p *batchProcessor) process(ctx context.Context, batch []domain.WorkoutSubmission) (int, error) {
	recorded := 0
	for i, sub := range batch {
		err := p.completeWithRetry(ctx, sub)
		if err != nil && retryable(err) {
			p.logger.Error("failed to process workout completion",
				"user_id", sub.UserID,
				"request_id", sub.RequestID,
				"error", err,
			)
			return i, err
		}
		if err != nil {
			p.logger.Warn("rejected workout completion",
				"user_id", sub.UserID,
				"request_id", sub.RequestID,
				"error", err,
			)
			continue
		}
		recorded++
	}
	p.logger.Debug("processed batch", "batch_size", len(batch), "recorded", recorded)
	return len(batch), nil
}

func (p *batchProcessor) completeWithRetry(ctx context.Context, sub domain.WorkoutSubmission) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err = p.handler.CompleteWorkout(opCtx, sub)
		cancel()
		if err == nil || !retryable(err) {
			break
		}
		if attempt < p.attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}
	}
	if errors.Is(err, domain.ErrDuplicateRequest) {
		p.logger.Info("skipping redelivered workout completion", "user_id", sub.UserID, "request_id", sub.RequestID)
		return nil
	}
	return err
}

// retryable reports whether a failed completion may succeed on redelivery
func retryable(err error) bool {
	return !domain.IsValidationError(err) &&
		!domain.IsNotFoundError(err) &&
		!errors.Is(err, domain.ErrDuplicateRequest)
}
