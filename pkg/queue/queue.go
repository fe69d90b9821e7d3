package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/hugh/estateflow/pkg/config"
)

// Login and invitation mail is read while the user waits for it, so it
// drains ahead of client notifications.
const (
	QueueAuth          = "auth"
	QueueNotifications = "notifications"
)

// Priorities are the weights handed to asynq; a worker polls QueueAuth six
// times as often as QueueNotifications.
var Priorities = map[string]int{
	QueueAuth:          6,
	QueueNotifications: 1,
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
	}
}

func NewClient(cfg *config.RedisConfig) *asynq.Client {
	return asynq.NewClient(redisOpt(cfg))
}

type ServerOptions struct {
	Concurrency int
	Logger      *slog.Logger
}

func NewServer(cfg *config.RedisConfig, opts ServerOptions) *asynq.Server {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	log := opts.Logger.With("component", "asynq")

	return asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: opts.Concurrency,
			Queues:      Priorities,
			Logger:      &slogAdapter{log: log},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				log.Warn("task failed",
					"type", task.Type(),
					"retry", retried,
					"max_retry", maxRetry,
					"error", err,
				)
			}),
			HealthCheckFunc: func(err error) {
				if err != nil {
					log.Error("redis health check failed", "error", err)
				}
			},
		},
	)
}

// slogAdapter satisfies asynq.Logger.
type slogAdapter struct {
	log *slog.Logger
}

func (a *slogAdapter) Debug(args ...interface{}) { a.log.Debug(fmt.Sprint(args...)) }
func (a *slogAdapter) Info(args ...interface{})  { a.log.Info(fmt.Sprint(args...)) }
func (a *slogAdapter) Warn(args ...interface{})  { a.log.Warn(fmt.Sprint(args...)) }
func (a *slogAdapter) Error(args ...interface{}) { a.log.Error(fmt.Sprint(args...)) }

// Fatal logs at error and leaves exiting to asynq's caller.
func (a *slogAdapter) Fatal(args ...interface{}) { a.log.Error(fmt.Sprint(args...), "fatal", true) }

var _ asynq.Logger = (*slogAdapter)(nil)
