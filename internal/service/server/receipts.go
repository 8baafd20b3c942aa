package server

import (
	"context"
	"encoding/json"
	"fmt"

	"ephemsg/internal/service/presence"
	redisSvc "ephemsg/internal/service/redis"
	"ephemsg/internal/utils/log"

	"go.uber.org/zap"
)

// ReceiptBuffer parks status events (delivery/read receipts, bulk reads)
// addressed to a user with no live connections and replays them when the
// user next logs in. Messages themselves are never buffered here; offline
// recipients get those from chat history.
type ReceiptBuffer struct {
	redis *redisSvc.RedisService
}

func NewReceiptBuffer(redis *redisSvc.RedisService) *ReceiptBuffer {
	return &ReceiptBuffer{redis: redis}
}

func receiptKey(userID string) string {
	return fmt.Sprintf("receipts:%s", userID)
}

func (b *ReceiptBuffer) Buffer(ctx context.Context, userID, event string, data any) {
	payload, err := json.Marshal(outEnvelope{Event: event, Data: data})
	if err != nil {
		log.Error("marshal buffered receipt failed", zap.Error(err))
		return
	}
	if err := b.redis.Push(ctx, receiptKey(userID), payload); err != nil {
		// best effort: the durable message state still carries the status
		log.Error("buffer receipt failed", zap.String("userId", userID), zap.Error(err))
	}
}

// Flush drains and delivers everything buffered for userID.
func (b *ReceiptBuffer) Flush(ctx context.Context, userID string, h presence.Handle) error {
	vals, err := b.redis.Drain(ctx, receiptKey(userID))
	if err != nil {
		return err
	}
	for _, v := range vals {
		var env envelope
		if err := json.Unmarshal([]byte(v), &env); err != nil {
			log.Error("corrupt buffered receipt dropped", zap.String("userId", userID), zap.Error(err))
			continue
		}
		h.Send(env.Event, env.Data)
	}
	return nil
}
