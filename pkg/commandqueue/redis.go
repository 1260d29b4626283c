package commandqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const DefaultQueue = "briefwell:commands"

type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

// Queue is a Redis-list backed command queue. The API side enqueues,
// workers consume; a command is handed to exactly one consumer.
type Queue struct {
	client redis.UniversalClient
	queue  string
	logger *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewQueue(ctx context.Context, config Config, logger *slog.Logger) (*Queue, error) {
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}

	if config.Queue == "" {
		config.Queue = DefaultQueue
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", config.Addr, "queue", config.Queue)

	return &Queue{
		client: client,
		queue:  config.Queue,
		stopCh: make(chan struct{}),
		logger: logger.With("module", "commandqueue", "queue", config.Queue),
	}, nil
}

// Enqueue validates and pushes a command onto the queue.
func (q *Queue) Enqueue(ctx context.Context, command Command) error {
	if err := command.Validate(); err != nil {
		return err
	}

	if command.EnqueuedAt.IsZero() {
		command.EnqueuedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	if err := q.client.RPush(ctx, q.queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue command: %w", err)
	}

	q.logger.InfoContext(ctx, "Command enqueued",
		"command_type", command.Type, "report_id", command.ReportID)

	return nil
}

// Handler processes a single dequeued command.
type Handler func(ctx context.Context, command Command) error

// Start launches the consumer loop. Handler errors are logged and the
// command is dropped; both run-now and resend are operator-initiated and
// safe to re-issue by hand.
func (q *Queue) Start(ctx context.Context, handler Handler) {
	q.wg.Add(1)

	go q.consume(ctx, handler)
}

func (q *Queue) consume(ctx context.Context, handler Handler) {
	defer q.wg.Done()

	q.logger.InfoContext(ctx, "Starting command consumer")

	for {
		select {
		case <-q.stopCh:
			q.logger.InfoContext(ctx, "Command consumer stopped")

			return
		case <-ctx.Done():
			return
		default:
			if err := q.processOne(ctx, handler); err != nil {
				q.logger.ErrorContext(ctx, "Error processing command", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (q *Queue) processOne(ctx context.Context, handler Handler) error {
	result, err := q.client.BLPop(ctx, time.Second, q.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return nil
		}

		return fmt.Errorf("failed to pop command: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	payload := []byte(result[1])

	if err := ValidatePayload(payload); err != nil {
		q.logger.WarnContext(ctx, "Dropping malformed command", "error", err)

		return nil
	}

	var command Command
	if err := json.Unmarshal(payload, &command); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	if err := handler(ctx, command); err != nil {
		q.logger.ErrorContext(ctx, "Command handler failed",
			"command_type", command.Type, "report_id", command.ReportID, "error", err)
	}

	return nil
}

func (q *Queue) Stop(_ context.Context) error {
	q.stopOnce.Do(func() {
		close(q.stopCh)
	})

	q.wg.Wait()

	return q.client.Close()
}
