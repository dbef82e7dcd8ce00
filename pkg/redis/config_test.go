package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name: "valid",
			cfg:  Config{URL: "redis://localhost:6379", Channel: "invalidations", Buffer: 10},
		},
		{
			name:    "missing url",
			cfg:     Config{Channel: "invalidations"},
			wantErr: ErrURLRequired,
		},
		{
			name:    "missing channel",
			cfg:     Config{URL: "redis://localhost:6379"},
			wantErr: ErrChannelRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestConfig_ValidateDefaultsBuffer(t *testing.T) {
	cfg := Config{URL: "redis://localhost:6379", Channel: "c"}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1024, cfg.Buffer)
}

func TestConfig_ChannelName(t *testing.T) {
	assert.Equal(t, "partcache:invalidations", (&Config{Channel: "invalidations", Prefix: "partcache"}).ChannelName())
	assert.Equal(t, "invalidations", (&Config{Channel: "invalidations"}).ChannelName())
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(&Config{URL: "redis://localhost:6379/2"})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "localhost:6379", client.Options().Addr)
	assert.Equal(t, 2, client.Options().DB)

	_, err = NewClient(&Config{URL: "://bad"})
	require.Error(t, err)
}
