package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tadcs/certportal/internal/domain"
)

const ApplicationChannel = "certportal:applications"

// SignalService relays lifecycle events through redis pub/sub so every
// instance can push them to its connected admin dashboards.
type SignalService struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

func NewSignalService(redisClient *redis.Client, logger *zap.Logger) *SignalService {
	return &SignalService{
		rdb:     redisClient,
		channel: ApplicationChannel,
		logger:  logger.With(zap.String("module", "signal")),
	}
}

func (s *SignalService) Publish(ctx context.Context, event domain.Event) error {

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, s.channel, jsonstr).Err()
	if err != nil {
		return err
	}

	return nil
}

// Subscribe streams events until ctx is done. The returned channel is
// closed when the subscription ends.
func (s *SignalService) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	pubsub := s.rdb.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan domain.Event)
	go func() {
		defer close(out)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.logger.Warn("malformed event on channel", zap.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
