package repository

import (
	"context"
	"encoding/json"
	"sync"

	"lifeguard_mailbox/internal/mailbox/domain"
	"lifeguard_mailbox/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	senderChannelPrefix    = "mailbox:sender:"
	recipientChannelPrefix = "mailbox:recipient:"
)

// SenderChannel feed of changes where userID is the sender
func SenderChannel(userID string) string { return senderChannelPrefix + userID }

// RecipientChannel feed of changes where userID is the recipient
func RecipientChannel(userID string) string { return recipientChannelPrefix + userID }

// Participants sender and recipient of a changed message
type Participants struct {
	SenderID    string `bson:"sender_id"`
	RecipientID string `bson:"recipient_id"`
}

// ChangeFeed realtime change notification
type ChangeFeed interface {
	Publish(ctx context.Context, event domain.ChangeEvent, parts ...Participants) error
	Subscribe(ctx context.Context, userID string, onChange func()) (func(), error)
}

// RedisChangeFeed ChangeFeed over redis pub/sub
type RedisChangeFeed struct {
	client *redis.Client
}

// NewRedisChangeFeed create RedisChangeFeed
func NewRedisChangeFeed(client *redis.Client) *RedisChangeFeed {
	return &RedisChangeFeed{client: client}
}

// Publish 發布到每個參與者的 sender/recipient channel
func (r *RedisChangeFeed) Publish(ctx context.Context, event domain.ChangeEvent, parts ...Participants) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	for _, ch := range changeChannels(parts) {
		if err := r.client.Publish(ctx, ch, data).Err(); err != nil {
			logger.Log.Error("publish change failed", zap.String("channel", ch), zap.Error(err))
			return err
		}
	}
	return nil
}

func changeChannels(parts []Participants) []string {
	seen := make(map[string]struct{})
	channels := make([]string, 0, len(parts)*2)
	add := func(ch string) {
		if _, ok := seen[ch]; ok {
			return
		}
		seen[ch] = struct{}{}
		channels = append(channels, ch)
	}
	for _, p := range parts {
		if p.SenderID != "" {
			add(SenderChannel(p.SenderID))
		}
		if p.RecipientID != "" {
			add(RecipientChannel(p.RecipientID))
		}
	}
	return channels
}

// Subscribe listen to both feeds of userID until ctx is done or the returned func is called
func (r *RedisChangeFeed) Subscribe(ctx context.Context, userID string, onChange func()) (func(), error) {
	sub := r.client.Subscribe(ctx, SenderChannel(userID), RecipientChannel(userID))

	// 確認訂閱成功
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event domain.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logger.Log.Debug("unknown change payload", zap.String("channel", msg.Channel), zap.Error(err))
				}
				onChange()
			case <-subCtx.Done():
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}
