package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/reviewdash/internal/conf"
	"github.com/tphakala/reviewdash/internal/errors"
	"github.com/tphakala/reviewdash/internal/observability/metrics"
)

type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	publishErr error
	connects   int
	topics     []string
	payloads   [][]byte
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func TestPublisher_PublishesEnvelopeUnderEventTopic(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	p := NewPublisher(fc, "dash/events/")
	fixed := time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	err := p.Publish(t.Context(), "sync.completed", map[string]bool{"task": true})
	require.NoError(t, err)
	require.NoError(t, p.Publish(t.Context(), "ingest.completed", nil))

	assert.Equal(t, 1, fc.connects, "connects once, then reuses the connection")
	assert.Equal(t, []string{"dash/events/sync.completed", "dash/events/ingest.completed"}, fc.topics)

	var env struct {
		Event     string          `json:"event"`
		Timestamp time.Time       `json:"timestamp"`
		Data      map[string]bool `json:"data"`
	}
	require.NoError(t, json.Unmarshal(fc.payloads[0], &env))
	assert.Equal(t, "sync.completed", env.Event)
	assert.True(t, env.Timestamp.Equal(fixed))
	assert.Equal(t, map[string]bool{"task": true}, env.Data)
}

func TestPublisher_DefaultTopic(t *testing.T) {
	t.Parallel()

	p := NewPublisher(&fakeClient{}, "  ")
	assert.Equal(t, DefaultTopic+"/feedback.applied", p.Topic("feedback.applied"))
}

func TestPublisher_Errors(t *testing.T) {
	t.Parallel()

	t.Run("connect", func(t *testing.T) {
		t.Parallel()
		p := NewPublisher(&fakeClient{connectErr: fmt.Errorf("refused")}, "dash")
		err := p.Publish(t.Context(), "sync.completed", nil)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
	})

	t.Run("publish", func(t *testing.T) {
		t.Parallel()
		p := NewPublisher(&fakeClient{publishErr: fmt.Errorf("timeout")}, "dash")
		err := p.Publish(t.Context(), "sync.completed", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout")
	})

	t.Run("marshal", func(t *testing.T) {
		t.Parallel()
		fc := &fakeClient{}
		p := NewPublisher(fc, "dash")
		err := p.Publish(t.Context(), "sync.completed", make(chan int))
		require.Error(t, err)
		assert.Zero(t, fc.connects, "nothing is sent for an unencodable payload")
	})
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	_, err := NewClient(&conf.MQTTSettings{}, nil)
	require.Error(t, err)

	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	c, err := NewClient(&conf.MQTTSettings{Broker: "tcp://127.0.0.1:1883", Topic: "dash", Retain: true}, m)
	require.NoError(t, err)

	impl, ok := c.(*client)
	require.True(t, ok)
	assert.Equal(t, "reviewdash", impl.config.ClientID)
	assert.Equal(t, "dash", impl.config.Topic)
	assert.True(t, impl.config.Retain)
	assert.False(t, c.IsConnected())
}

func TestClient_PublishWhileDisconnected(t *testing.T) {
	t.Parallel()

	c, err := NewClient(&conf.MQTTSettings{Broker: "tcp://127.0.0.1:1883"}, nil)
	require.NoError(t, err)

	err = c.Publish(t.Context(), "dash/x", []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
	c.Disconnect()
}

func TestClient_InvalidBrokerURL(t *testing.T) {
	t.Parallel()

	c, err := NewClient(&conf.MQTTSettings{Broker: "not a url"}, nil)
	require.NoError(t, err)

	err = c.Connect(t.Context())
	require.Error(t, err)
	assert.False(t, c.IsConnected())

	// a second attempt right away is refused by the cooldown
	err = c.Connect(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too recent")
}
