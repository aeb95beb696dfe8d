//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"cradle/internal/platform/kafka"
	"cradle/pkg/testutil/containers"
)

type ProducerSuite struct {
	suite.Suite
	brokers []string
}

func TestProducerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerSuite))
}

func (s *ProducerSuite) SetupSuite() {
	s.brokers = containers.GetManager().GetRedpanda(s.T()).Brokers
}

func (s *ProducerSuite) TestProduceAndConsume() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	producer, err := kafka.NewProducer(s.brokers, "cradle.test.records")
	s.Require().NoError(err)
	defer producer.Close()

	s.Require().NoError(producer.EnsureTopic(ctx, 1, 1))
	s.Require().NoError(producer.EnsureTopic(ctx, 1, 1), "second call tolerates an existing topic")
	s.Require().NoError(producer.Produce(ctx, "dep-1", []byte(`{"type":"record_inserted"}`),
		kafka.Header{Key: "event-type", Value: "record_inserted"}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics("cradle.test.records"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().NotEmpty(records)
	s.Equal("dep-1", string(records[0].Key))
	s.Equal("event-type", records[0].Headers[0].Key)
}

func (s *ProducerSuite) TestNoBrokersDisablesProducer() {
	p, err := kafka.NewProducer(nil, "unused")
	s.Require().NoError(err)
	s.Nil(p)
}
