package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storefront-labs/orchestrator/pkg/model"
)

type mockJetStream struct {
	mu        sync.Mutex
	published []*nats.Msg
	fail      bool
}

func (m *mockJetStream) PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("mock publish error")
	}
	m.published = append(m.published, msg)
	return &nats.PubAck{Stream: "LISTINGS"}, nil
}

func newTestPublisher(js JetStream) *ListingPublisher {
	return NewWithJetStream(js, Config{
		SubjectPrefix:  "evt.listing",
		Service:        "storefront",
		Timeout:        time.Second,
		EditsPerSecond: 100,
		Burst:          10,
	}, zap.NewNop())
}

func listing() model.Listing {
	return model.Listing{
		ProductID: "p1",
		MediaRef:  "media-1",
		Price:     decimal.NewFromInt(1500),
		Sizes:     model.Sizes{"40", "41"},
	}
}

func decode(t *testing.T, msg *nats.Msg) (model.Envelope, ListingPayload) {
	t.Helper()
	var env model.Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	var payload ListingPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	return env, payload
}

func TestPublish_AssignsRef(t *testing.T) {
	js := &mockJetStream{}
	p := newTestPublisher(js)

	ref, err := p.Publish(context.Background(), listing())
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	require.Len(t, js.published, 1)
	msg := js.published[0]
	assert.Equal(t, "evt.listing.published.v1", msg.Subject)
	assert.Equal(t, "listing.publish", msg.Header.Get("event_type"))
	assert.Equal(t, ref, msg.Header.Get("listing_ref"))
	assert.NotEmpty(t, msg.Header.Get(nats.MsgIdHdr))

	_, payload := decode(t, msg)
	assert.Equal(t, ref, payload.Ref)
	assert.Contains(t, payload.Caption, "40, 41 size")
}

func TestUpdate_CarriesCaption(t *testing.T) {
	js := &mockJetStream{}
	p := newTestPublisher(js)

	l := listing()
	l.Ref = "ref-1"
	l.Sizes = model.Sizes{}
	l.SoldOut = true
	require.NoError(t, p.Update(context.Background(), l))

	require.Len(t, js.published, 1)
	assert.Equal(t, "evt.listing.updated.v1", js.published[0].Subject)
	_, payload := decode(t, js.published[0])
	assert.True(t, payload.SoldOut)
	assert.Contains(t, payload.Caption, "SOLD OUT")
}

func TestUpdate_RequiresRef(t *testing.T) {
	p := newTestPublisher(&mockJetStream{})
	assert.ErrorIs(t, p.Update(context.Background(), listing()), model.ErrMalformedInput)
}

func TestRemove(t *testing.T) {
	js := &mockJetStream{}
	p := newTestPublisher(js)

	require.NoError(t, p.Remove(context.Background(), "ref-1", "p1"))
	require.NoError(t, p.Remove(context.Background(), "", "p2"))

	require.Len(t, js.published, 1)
	assert.Equal(t, "evt.listing.removed.v1", js.published[0].Subject)
}

func TestPublishFailure_WrapsUnavailable(t *testing.T) {
	p := newTestPublisher(&mockJetStream{fail: true})

	_, err := p.Publish(context.Background(), listing())
	assert.ErrorIs(t, err, model.ErrPublisherUnavailable)

	l := listing()
	l.Ref = "ref-1"
	assert.ErrorIs(t, p.Update(context.Background(), l), model.ErrPublisherUnavailable)
}

func TestRateLimit_ContextDeadline(t *testing.T) {
	js := &mockJetStream{}
	p := NewWithJetStream(js, Config{EditsPerSecond: 0.01, Burst: 1, Timeout: 30 * time.Millisecond}, zap.NewNop())

	l := listing()
	l.Ref = "ref-1"
	require.NoError(t, p.Update(context.Background(), l))
	err := p.Update(context.Background(), l)
	assert.ErrorIs(t, err, model.ErrPublisherUnavailable)
	assert.Len(t, js.published, 1)
}
