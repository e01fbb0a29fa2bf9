package publisher

import (
	"errors"

	"github.com/nats-io/nats.go"
)

// StreamManager is the slice of nats.JetStreamManager used to provision the listing stream.
type StreamManager interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// EnsureStream creates the stream capturing every listing subject under prefix
// unless it already exists. An empty name leaves provisioning to operators.
func EnsureStream(sm StreamManager, name, prefix string) error {
	if name == "" {
		return nil
	}
	_, err := sm.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = sm.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{prefix + ".>"},
		Storage:  nats.FileStorage,
	})
	return err
}
