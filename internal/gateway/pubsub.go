package gateway

import (
	"context"

	goredis "github.com/go-redis/redis/v8"
)

// PubSubRouter forwards Redis PubSub messages to the hub. The redis activity
// store publishes every appended record, so routing its channel gives
// dashboards the activity log as it is written, including records from
// other bot instances sharing the stream.
type PubSubRouter struct {
	hub      *Hub
	rdb      *goredis.Client
	channels map[string]string // redis channel -> hub channel
}

// NewPubSubRouter maps each redis channel onto a hub channel.
func NewPubSubRouter(hub *Hub, rdb *goredis.Client, channels map[string]string) *PubSubRouter {
	return &PubSubRouter{hub: hub, rdb: rdb, channels: channels}
}

// Run subscribes and forwards messages. Blocks until ctx is cancelled.
func (r *PubSubRouter) Run(ctx context.Context) {
	if len(r.channels) == 0 {
		return
	}
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}

	pubsub := r.rdb.Subscribe(ctx, names...)
	defer pubsub.Close()

	r.hub.log.Info().Strs("channels", names).Msg("subscribed to redis pubsub")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			target, known := r.channels[msg.Channel]
			if !known {
				continue
			}
			r.hub.Broadcast(target, []byte(msg.Payload))
		}
	}
}
