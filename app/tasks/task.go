package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeSyncSubscription       TaskType = "sync_subscription"
	TaskTypeSyncSubscriptionConfig TaskType = "sync_subscription_config"
)

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetSubscriptionName() string
	Start()
	GetDuration() time.Duration
}

type Task struct {
	ID               string
	Type             TaskType
	SubscriptionName string
	StartedAt        *time.Time
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetSubscriptionName() string {
	return t.SubscriptionName
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

func NewTask(taskType TaskType, subscriptionName string) Task {
	return Task{
		ID:               uuid.NewString(),
		Type:             taskType,
		SubscriptionName: subscriptionName,
	}
}
