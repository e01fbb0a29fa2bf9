package publisher

import (
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStreams struct {
	infoErr error
	added   []*nats.StreamConfig
}

func (m *mockStreams) StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	if m.infoErr != nil {
		return nil, m.infoErr
	}
	return &nats.StreamInfo{Config: nats.StreamConfig{Name: stream}}, nil
}

func (m *mockStreams) AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error) {
	m.added = append(m.added, cfg)
	return &nats.StreamInfo{Config: *cfg}, nil
}

func TestEnsureStream_CreatesMissing(t *testing.T) {
	sm := &mockStreams{infoErr: nats.ErrStreamNotFound}
	require.NoError(t, EnsureStream(sm, "LISTINGS", "evt.listing"))
	require.Len(t, sm.added, 1)
	assert.Equal(t, []string{"evt.listing.>"}, sm.added[0].Subjects)
}

func TestEnsureStream_ExistingOrDisabled(t *testing.T) {
	sm := &mockStreams{}
	require.NoError(t, EnsureStream(sm, "LISTINGS", "evt.listing"))
	require.NoError(t, EnsureStream(sm, "", "evt.listing"))
	assert.Empty(t, sm.added)

	sm.infoErr = errors.New("jetstream not enabled")
	assert.Error(t, EnsureStream(sm, "LISTINGS", "evt.listing"))
}
