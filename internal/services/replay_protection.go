package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"purchase-api/pkg/logging"

	"github.com/redis/go-redis/v9"
)

// ReplayProtection detects duplicate deliveries of store webhook
// notifications. Notification ids are remembered in Redis with a TTL, so
// detection survives process restarts and is shared across instances.
type ReplayProtection struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReplayProtection creates a replay protection instance
func NewReplayProtection(client *redis.Client, ttl time.Duration) *ReplayProtection {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ReplayProtection{client: client, ttl: ttl}
}

// IsReplay reports whether a notification id was already processed, and
// records it if not. A notification without an id cannot be checked and is
// allowed through.
func (rp *ReplayProtection) IsReplay(ctx context.Context, notificationID string) bool {
	if notificationID == "" {
		logging.Infof("Notification id is empty, skipping replay check")
		return false
	}

	key := rp.key(notificationID)
	created, err := rp.client.SetNX(ctx, key, time.Now().Unix(), rp.ttl).Result()
	if err != nil {
		// Fail open: a broken Redis must not drop store notifications.
		logging.Errorf("Replay check failed for %s: %v", notificationID, err)
		return false
	}

	if !created {
		logging.Infof("Replay detected - notification_id: %s", notificationID)
		return true
	}
	return false
}

func (rp *ReplayProtection) key(notificationID string) string {
	hash := sha256.Sum256([]byte(notificationID))
	return fmt.Sprintf("store_notification:%s", hex.EncodeToString(hash[:]))
}
