package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// fanoutFrame is what travels over Redis between instances. Origin lets the
// publishing instance skip its own frames; Exclude carries the originating
// connection id so an instance that happens to host it can keep honoring the
// exclude-self broadcast shape.
type fanoutFrame struct {
	Origin  string          `json:"origin"`
	Exclude string          `json:"exclude,omitempty"`
	Msg     json.RawMessage `json:"msg"`
}

func fanoutChannel(roomKey string) string { return "room:" + roomKey + ":events" }

// Fanout publishes room events so every other instance can deliver them to
// its own connections. Best-effort: a failed publish is logged and dropped.
type Fanout struct {
	rdb        *redis.Client
	instanceID string
}

func NewFanout(rdb *redis.Client, instanceID string) *Fanout {
	return &Fanout{rdb: rdb, instanceID: instanceID}
}

func (f *Fanout) Publish(roomKey string, msg []byte, excludeConnID string) {
	frame, err := json.Marshal(fanoutFrame{
		Origin:  f.instanceID,
		Exclude: excludeConnID,
		Msg:     msg,
	})
	if err != nil {
		zap.L().Warn("fanout.marshal", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.rdb.Publish(ctx, fanoutChannel(roomKey), frame).Err(); err != nil {
		zap.L().Warn("fanout.publish_failed", zap.String("roomKey", roomKey), zap.Error(err))
	}
}
