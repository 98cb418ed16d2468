// Package relay moves stored notifications out of process through Redis via
// asynq. Enqueuing is best-effort by contract: the dispatcher logs and drops
// failures rather than failing the transition that produced the notification.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/khidmahub/khidmahub/internal/notify"
)

// Relay wraps the asynq client used by the API process.
type Relay struct {
	client *asynq.Client
}

func New(redisAddr, password string, db int) *Relay {
	return &Relay{client: asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})}
}

// EnqueueDelivery schedules the out-of-process delivery of a notification and
// returns the task id.
func (r *Relay) EnqueueDelivery(ctx context.Context, n notify.Notification) (string, error) {
	payload := DeliverPayload{
		NotificationID: n.ID,
		Notification:   n,
		EnqueuedAt:     time.Now().UTC(),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode delivery payload: %w", err)
	}
	task := asynq.NewTask(TaskNotificationDeliver, b)
	info, err := r.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (r *Relay) Close() error {
	return r.client.Close()
}

var _ notify.Enqueuer = (*Relay)(nil)
