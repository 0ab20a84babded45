package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// subscriptionManager guarantees that the process holds **exactly one** Redis
// subscription per populated room channel, no matter how often the hub
// creates and drops the room under concurrent joins and leaves.
type subscriptionManager struct {
	rdb        *redis.Client
	hub        *Hub
	instanceID string
	mu         sync.Mutex
	subs       map[string]*subEntry // room key ➜ subscription data
}

type subEntry struct {
	refCnt int
	cancel context.CancelFunc
}

func newSubscriptionManager(rdb *redis.Client, hub *Hub, instanceID string) *subscriptionManager {
	return &subscriptionManager{
		rdb:        rdb,
		hub:        hub,
		instanceID: instanceID,
		subs:       make(map[string]*subEntry),
	}
}

// WireFanout builds the publish/subscribe pair for a hub and attaches it.
func WireFanout(rdb *redis.Client, hub *Hub, instanceID string) {
	hub.SetFanout(NewFanout(rdb, instanceID), newSubscriptionManager(rdb, hub, instanceID))
}

// Subscribe ensures the process is subscribed to the room's channel;
// subsequent calls for the same room only increment the ref-counter.
func (sm *subscriptionManager) Subscribe(roomKey string) {
	sm.mu.Lock()
	if e, ok := sm.subs[roomKey]; ok {
		e.refCnt++
		sm.mu.Unlock()
		return
	}

	// First consumer → create Redis SUB and fan-out loop.
	ctx, cancel := context.WithCancel(context.Background())
	ps := sm.rdb.Subscribe(ctx, fanoutChannel(roomKey))

	sm.subs[roomKey] = &subEntry{refCnt: 1, cancel: cancel}
	sm.mu.Unlock()

	go func() {
		defer ps.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ps.Channel():
				if !ok { // Redis connection closed.
					return
				}

				var frame fanoutFrame
				if err := json.Unmarshal([]byte(m.Payload), &frame); err != nil {
					zap.L().Warn("ws.fanout_frame_decode", zap.Error(err))
					continue
				}
				if frame.Origin == sm.instanceID {
					continue // already delivered locally at publish time
				}
				sm.hub.deliverLocal(roomKey, frame.Msg, frame.Exclude)
			}
		}
	}()
}

// Unsubscribe decrements the ref-counter and tears the Redis SUB down when
// the last local member leaves the room.
func (sm *subscriptionManager) Unsubscribe(roomKey string) {
	sm.mu.Lock()
	e, ok := sm.subs[roomKey]
	if !ok {
		sm.mu.Unlock()
		return
	}
	e.refCnt--
	if e.refCnt > 0 {
		sm.mu.Unlock()
		return
	}
	delete(sm.subs, roomKey)
	sm.mu.Unlock()

	// Outside the lock → stop the fan-out goroutine.
	e.cancel()
}
