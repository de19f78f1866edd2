package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/drinkster/game"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{port: 8080}
	}

	t.Run("defaults pass", func(t *testing.T) {
		t.Parallel()
		cfg := base()
		assert.NoError(t, cfg.validate())
	})

	t.Run("tls cert and key must come together", func(t *testing.T) {
		t.Parallel()
		cfg := base()
		cfg.tlsCert = "cert.pem"
		assert.Error(t, cfg.validate())

		cfg.tlsKey = "key.pem"
		assert.NoError(t, cfg.validate())
	})

	t.Run("port bounds", func(t *testing.T) {
		t.Parallel()
		cfg := base()
		cfg.port = 0
		assert.Error(t, cfg.validate())

		cfg.port = 65536
		assert.Error(t, cfg.validate())

		cfg.port = 65535
		assert.NoError(t, cfg.validate())
	})

	t.Run("negative turn timeout", func(t *testing.T) {
		t.Parallel()
		cfg := base()
		cfg.turnTimeout = -time.Second
		assert.Error(t, cfg.validate())

		cfg.turnTimeout = 0
		assert.NoError(t, cfg.validate())
	})
}

func TestConfigScheme(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	assert.Equal(t, "http", cfg.scheme())

	cfg.tlsCert, cfg.tlsKey = "cert.pem", "key.pem"
	assert.Equal(t, "https", cfg.scheme())
}

func TestConfigFlags(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	cmd := newCmd(&cfg)
	require.Equal(t, "drinkster", cmd.Use)

	// Flag registration writes the defaults straight into cfg.
	assert.Equal(t, 8080, cfg.port)
	assert.Equal(t, "0.0.0.0", cfg.bind)
	assert.Equal(t, 3*time.Minute, cfg.turnTimeout)
	assert.Equal(t, 10*time.Minute, cfg.playerTimeout)
	assert.Equal(t, time.Hour, cfg.sessionTimeout)
}

func TestErrorCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{game.ErrValidation, "validation"},
		{game.ErrRoomNotFound, "room_not_found"},
		{game.ErrPlayerNotFound, "player_not_found"},
		{game.ErrPermissionDenied, "permission_denied"},
		{game.ErrInvalidState, "invalid_state"},
		{game.ErrNotReady, "not_ready"},
		{game.ErrNotYourTurn, "not_your_turn"},
		{assert.AnError, "error"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, errorCode(tt.err))
	}
}

func TestHumanReadableSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "100 B", humanReadableSize(100))
	assert.Equal(t, "1.5 kB", humanReadableSize(1500))
	assert.Equal(t, "2.0 MB", humanReadableSize(2000000))
}
