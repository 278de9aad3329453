package relay

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/twinj/uuid"

	"github.com/janelia-flyem/voxelsync/voxelsync"
)

const channelPrefix = "voxsync:"

// bridgeFrame wraps a relayed frame with its publishing instance so a
// subscriber can ignore its own publications.
type bridgeFrame struct {
	Instance string `json:"instance"`
	Frame    string `json:"frame"`
}

// RedisBridge propagates session frames between relay instances through
// redis pub/sub, one channel per session.
type RedisBridge struct {
	rdb        *redis.Client
	instanceID string
}

// NewRedisBridge connects to redis and verifies the connection with a ping.
func NewRedisBridge(ctx context.Context, cfg RedisConfig) (*RedisBridge, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	b := &RedisBridge{
		rdb:        rdb,
		instanceID: uuid.NewV4().String(),
	}
	voxelsync.Infof("redis bridge connected to %s as instance %s\n", cfg.Address, b.instanceID)
	return b, nil
}

// Publish sends a locally originated frame to the session's channel.
func (b *RedisBridge) Publish(sessionID, frame string) {
	payload, err := json.Marshal(bridgeFrame{Instance: b.instanceID, Frame: frame})
	if err != nil {
		voxelsync.Errorf("redis bridge marshal failed for session %s: %v\n", sessionID, err)
		return
	}
	if err := b.rdb.Publish(context.Background(), channelPrefix+sessionID, payload).Err(); err != nil {
		voxelsync.Errorf("redis publish failed for session %s: %v\n", sessionID, err)
	}
}

// Subscribe delivers frames published by other instances for the session.
func (b *RedisBridge) Subscribe(sessionID string, sink func(frame string)) (cancel func()) {
	pubsub := b.rdb.Subscribe(context.Background(), channelPrefix+sessionID)
	go func() {
		for msg := range pubsub.Channel() {
			var bf bridgeFrame
			if err := json.Unmarshal([]byte(msg.Payload), &bf); err != nil {
				voxelsync.Warningf("redis bridge dropping malformed frame on %s: %v\n",
					msg.Channel, err)
				continue
			}
			if bf.Instance == b.instanceID {
				continue
			}
			sink(bf.Frame)
		}
	}()
	return func() {
		if err := pubsub.Close(); err != nil {
			voxelsync.Warningf("redis unsubscribe failed for session %s: %v\n", sessionID, err)
		}
	}
}

// Close releases the redis connection.
func (b *RedisBridge) Close() error {
	return b.rdb.Close()
}
