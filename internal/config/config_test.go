package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	t.Setenv("MONGODB_DATABASE", "paperdesk_test")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "testsecret123456789012345678901234")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "mongodb://localhost:27017/testdb", cfg.MongoDB.URI)
	require.Equal(t, "paperdesk_test", cfg.MongoDB.Database)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
	require.Equal(t, 60*time.Minute, cfg.JWT.AccessTokenTTL)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	t.Setenv("REDIS_HOST", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Empty(t, cfg.MongoDB.URI)
	require.Empty(t, cfg.Redis.Addr())
	require.Equal(t, "5001", cfg.Server.Port)
	require.Equal(t, int64(32<<20), cfg.Server.MaxUploadBytes)
	require.Len(t, cfg.Papers.Statuses, 8)
	require.Equal(t, "Draft", cfg.Papers.Statuses[0])
	require.Equal(t, 30*time.Second, cfg.Papers.LockTTL)
}

func TestLoadConfig_CustomStatuses(t *testing.T) {
	t.Setenv("PAPER_STATUSES", " Draft , Submitted,,Published ")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, []string{"Draft", "Submitted", "Published"}, cfg.Papers.Statuses)
}
