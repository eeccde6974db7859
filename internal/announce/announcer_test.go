package announce

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/ondemand/internal/config"
	"git.home.luguber.info/inful/ondemand/internal/events"
)

func TestNew_DisabledConfigRefuses(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	_, err := New(slog.New(slog.DiscardHandler), config.NATSConfig{Enabled: false}, bus)
	require.Error(t, err)
}

func TestNew_UnreachableServerFails(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	_, err := New(slog.New(slog.DiscardHandler), config.NATSConfig{
		Enabled: true,
		URL:     "nats://127.0.0.1:1", // nothing listens here
	}, bus)
	assert.Error(t, err)
}
