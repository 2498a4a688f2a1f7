package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "production defaults",
			cfg:  DefaultConfig(),
		},
		{
			name: "development",
			cfg:  DevelopmentConfig(),
		},
		{
			name: "invalid level",
			cfg: Config{
				Level:       "loud",
				OutputPaths: []string{"stdout"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			logger.Info("test message")
		})
	}
}

func TestNewWithRotation(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.FilePath = filepath.Join(dir, "service.log")

	logger, err := New(cfg)
	require.NoError(t, err)

	logger.Info("rotating sink message")
	require.NoError(t, logger.Sync())

	assert.FileExists(t, cfg.FilePath)
}

func TestNewDefaultNeverNil(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	logger.Debug("suppressed at info level")
}
