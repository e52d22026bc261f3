package queue

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelpline/msgcore/internal/errs"
	"github.com/kelpline/msgcore/internal/types"
)

func TestAckLevel(t *testing.T) {
	assert.Equal(t, sarama.NoResponse, ackLevel("none"))
	assert.Equal(t, sarama.WaitForLocal, ackLevel("local"))
	assert.Equal(t, sarama.WaitForAll, ackLevel("all"))
	assert.Equal(t, sarama.WaitForAll, ackLevel("unrecognised"))
}

func TestPublishSendsJSONEnvelope(t *testing.T) {
	sc := mocks.NewTestConfig()
	mockProducer := mocks.NewSyncProducer(t, sc)
	mockProducer.ExpectSendMessageAndSucceed()

	p := &Producer{topic: "chat.envelopes", producer: mockProducer, log: zap.NewNop()}
	err := p.Publish(&types.Msg{LocalID: "l1", MsgType: types.SingleMsg})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestPublishReturnsTransientErrorOnFailure(t *testing.T) {
	sc := mocks.NewTestConfig()
	mockProducer := mocks.NewSyncProducer(t, sc)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := &Producer{topic: "chat.envelopes", producer: mockProducer, log: zap.NewNop()}
	err := p.Publish(&types.Msg{LocalID: "l2"})
	require.Error(t, err)
	assert.Equal(t, errs.KindTransient, errs.Of(err))
	require.NoError(t, mockProducer.Close())
}
