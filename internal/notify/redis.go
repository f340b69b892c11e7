package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/segyhp/expense-ledger/internal/domain"
	customError "github.com/segyhp/expense-ledger/pkg/errors"
)

type balanceChangedPayload struct {
	EventID int64                  `json:"event_id"`
	Changes []domain.BalanceChange `json:"changes"`
}

// RedisNotifier appends JSON messages to a capped Redis stream.
type RedisNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisNotifier(client *redis.Client, stream string, maxLen int64) *RedisNotifier {
	return &RedisNotifier{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

func (n *RedisNotifier) PublishBalanceChanges(ctx context.Context, eventID int64, changes []domain.BalanceChange) error {
	if len(changes) == 0 {
		return nil
	}
	return n.publish(ctx, TypeBalanceChanged, eventID, balanceChangedPayload{EventID: eventID, Changes: changes})
}

func (n *RedisNotifier) PublishReminder(ctx context.Context, reminder domain.SettlementReminder) error {
	return n.publish(ctx, TypeSettlementReminder, reminder.EventID, reminder)
}

func (n *RedisNotifier) publish(ctx context.Context, msgType string, eventID int64, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	err = n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":     msgType,
			"event_id": eventID,
			"payload":  string(body),
		},
	}).Err()
	if err != nil {
		return customError.WrapCacheError(err)
	}

	return nil
}
