package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/referral/attribution"
)

type capturePublisher struct {
	msgs []*nats.Msg
	err  error
}

func (c *capturePublisher) PublishMsg(msg *nats.Msg) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func TestNATSPublishesAttribution(t *testing.T) {
	pub := &capturePublisher{}
	n := NewNATS(pub, "")

	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	a := attribution.New("user_1", "ABC123", attribution.SourceWebhook, at)
	require.NoError(t, n.Attributed(context.Background(), a))

	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, DefaultSubject, msg.Subject)
	assert.Equal(t, a.ID.String(), msg.Header.Get(nats.MsgIdHdr))

	var got Message
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "user_1", got.UserID)
	assert.Equal(t, "ABC123", got.ReferralCode)
	assert.Equal(t, "webhook", got.Source)
	assert.True(t, got.AttributedAt.Equal(at))
}

func TestNATSPublishError(t *testing.T) {
	n := NewNATS(&capturePublisher{err: nats.ErrConnectionClosed}, "custom.subject")

	err := n.Attributed(context.Background(), attribution.New("user_1", "ABC", attribution.SourceAPI, time.Now()))
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
	assert.Contains(t, err.Error(), "custom.subject")
}

func TestNATSCancelledContext(t *testing.T) {
	pub := &capturePublisher{}
	n := NewNATS(pub, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.Attributed(ctx, attribution.New("user_1", "ABC", attribution.SourceAPI, time.Now()))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, pub.msgs)
	assert.NoError(t, n.Close())
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Attributed(context.Background(), nil))
}
