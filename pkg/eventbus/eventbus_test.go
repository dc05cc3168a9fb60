package eventbus

import (
	"context"
	"testing"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsInvalidURL(t *testing.T) {
	_, err := New("not-a-redis-url", "")
	require.Error(t, err)
}

func TestNew_DefaultsChannel(t *testing.T) {
	p, err := New("redis://localhost:6379/0", "")
	require.NoError(t, err)
	assert.Equal(t, defaultChannel, p.channel)
	_ = p.Close()
}

func TestPublish_NilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	err := p.Publish(context.Background(), store.EpisodicEvent{EventType: "tool_executed"})
	assert.NoError(t, err)
	assert.NoError(t, p.Close())
}
