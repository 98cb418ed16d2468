package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Processor consumes delivery tasks in the worker process. Actual channel
// fan-out (push, SMS, email) hangs off handleDeliver; today it logs the
// delivery, which is enough for the feed-first product.
type Processor struct {
	server *asynq.Server
	log    *zap.Logger
}

func NewProcessor(redisAddr, password string, db int, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr, Password: password, DB: db},
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				QueueNotifications: 10,
			},
		},
	)
	return &Processor{server: server, log: log}
}

// Run blocks until Shutdown is called.
func (p *Processor) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskNotificationDeliver, p.handleDeliver)
	return p.server.Run(mux)
}

func (p *Processor) Shutdown() {
	p.server.Shutdown()
}

func (p *Processor) handleDeliver(_ context.Context, t *asynq.Task) error {
	var payload DeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode delivery payload: %w", err)
	}
	n := payload.Notification
	p.log.Info("notification delivered",
		zap.String("notification_id", payload.NotificationID.String()),
		zap.String("recipient_kind", string(n.Recipient.Kind)),
		zap.String("recipient_id", n.Recipient.ID.String()),
		zap.String("verb", n.Verb),
		zap.String("level", string(n.Level)))
	return nil
}
