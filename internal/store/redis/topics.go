package redis

import (
	"context"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
)

// TopicStore persists a client's desired topics as a Redis set.
type TopicStore struct {
	client *redis.Client
	prefix string
}

func NewTopicStore(client *redis.Client, prefix string) *TopicStore {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &TopicStore{client: client, prefix: prefix}
}

// Key returns the Redis key holding the topics of clientID.
func (s *TopicStore) Key(clientID string) string {
	return s.prefix + "topics:" + clientID
}

// SaveTopics replaces the stored set for clientID.
func (s *TopicStore) SaveTopics(ctx context.Context, clientID string, topics []string) error {
	key := s.Key(clientID)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(topics) > 0 {
		members := make([]any, len(topics))
		for i, t := range topics {
			members[i] = t
		}
		pipe.SAdd(ctx, key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis.TopicStore.SaveTopics: %w", err)
	}
	return nil
}

// LoadTopics returns the stored topics for clientID in sorted order.
func (s *TopicStore) LoadTopics(ctx context.Context, clientID string) ([]string, error) {
	topics, err := s.client.SMembers(ctx, s.Key(clientID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis.TopicStore.LoadTopics: %w", err)
	}
	slices.Sort(topics)
	return topics, nil
}
