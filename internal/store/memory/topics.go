package memory

import (
	"context"
	"slices"
	"sync"
)

// TopicStore keeps desired topics per client in process memory.
type TopicStore struct {
	mu     sync.Mutex
	topics map[string][]string
}

func NewTopicStore() *TopicStore {
	return &TopicStore{topics: make(map[string][]string)}
}

func (s *TopicStore) SaveTopics(_ context.Context, clientID string, topics []string) error {
	sorted := slices.Clone(topics)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(sorted) == 0 {
		delete(s.topics, clientID)
		return nil
	}
	s.topics[clientID] = sorted
	return nil
}

func (s *TopicStore) LoadTopics(_ context.Context, clientID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.topics[clientID]), nil
}
