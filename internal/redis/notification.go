package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// NotificationSentTTL is how long delivered job IDs are remembered.
const NotificationSentTTL = 7 * 24 * time.Hour

const notificationSentPrefix = "notification:sent:"

// NotificationStore records delivered notification jobs.
type NotificationStore struct {
	client *redis.Client
}

// NewNotificationStore creates a new NotificationStore.
func NewNotificationStore(client *redis.Client) *NotificationStore {
	return &NotificationStore{client: client}
}

// NotificationSent reports whether the job was already delivered.
func (s *NotificationStore) NotificationSent(ctx context.Context, jobID string) (bool, error) {
	n, err := s.client.Exists(ctx, notificationSentPrefix+jobID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkNotificationSent records the job as delivered.
func (s *NotificationStore) MarkNotificationSent(ctx context.Context, jobID string) error {
	return s.client.Set(ctx, notificationSentPrefix+jobID, time.Now().UTC().Format(time.RFC3339), NotificationSentTTL).Err()
}
