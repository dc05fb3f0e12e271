// Package topicManagerService implements broker administration on top of
// the topic index.
package topicManagerService

import (
	"github.com/treebus/treebus/internals/broker"
	"github.com/treebus/treebus/internals/message"
)

// TopicManagerServiceImpl implements the TopicManager interface.
type TopicManagerServiceImpl struct {
	broker *broker.Broker
}

// NewTopicManagerService creates a topic manager over the given broker.
func NewTopicManagerService(b *broker.Broker) *TopicManagerServiceImpl {
	return &TopicManagerServiceImpl{broker: b}
}

// SubsCount returns the hierarchical non-hidden subscriber count.
func (s *TopicManagerServiceImpl) SubsCount(topic string) int {
	return s.broker.SubsCount(topic)
}

// CleanSticky drops retained messages at prefix or below.
func (s *TopicManagerServiceImpl) CleanSticky(prefix string) {
	s.broker.CleanSticky(prefix)
}

// Stats returns the process-wide counters.
func (s *TopicManagerServiceImpl) Stats() BrokerStats {
	return BrokerStats{
		LiveMessages:    message.Live(),
		LiveSubscribers: s.broker.LiveSubscribers(),
	}
}
