package kafka_test

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/stepwise/pkg/channels/kafka"
	"github.com/stretchr/testify/assert"
)

func TestCreateChannel_NoBrokers(t *testing.T) {
	for _, brokers := range [][]string{nil, {}, {""}} {
		_, _, err := kafka.CreateChannel(watermill.NopLogger{}, brokers, "stepwise")
		assert.ErrorIs(t, err, kafka.ErrNoBrokers)
	}
}
