package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-chatroom/backend/internal/storage"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "CHAT_PROVIDER", "CHAT_MODEL", "CHAT_REQUEST_TIMEOUT", "CHAT_RESOURCE_TIMEOUT", "STORE_DRIVER", "STORE_PATH", "STORE_KEY"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ProviderOpenAI, cfg.AI.Provider)
	assert.Equal(t, "gpt-3.5-turbo", cfg.AI.Model)
	assert.Equal(t, 30*time.Second, cfg.AI.RequestTimeout)
	assert.Equal(t, 60*time.Second, cfg.AI.ResourceTimeout)
	assert.Equal(t, DriverFile, cfg.Store.Driver)
	assert.Equal(t, "./data", cfg.Store.Path)
	assert.Equal(t, "chatRooms", cfg.Store.Key)
}

func TestLoadServerAddr(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	server, err := loadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", server.Addr)

	t.Setenv("PORT", "80 80")
	_, err = loadServerConfig()
	assert.Error(t, err)
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("X_TIMEOUT", "15")
	got, err := parseDurationEnv("X_TIMEOUT", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, got)

	t.Setenv("X_TIMEOUT", "1m30s")
	got, err = parseDurationEnv("X_TIMEOUT", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, got)

	t.Setenv("X_TIMEOUT", "soon")
	_, err = parseDurationEnv("X_TIMEOUT", time.Second)
	assert.Error(t, err)

	t.Setenv("X_TIMEOUT", "-5")
	_, err = parseDurationEnv("X_TIMEOUT", time.Second)
	assert.Error(t, err)
}

func TestLoadRejectsShortResourceTimeout(t *testing.T) {
	t.Setenv("CHAT_REQUEST_TIMEOUT", "30s")
	t.Setenv("CHAT_RESOURCE_TIMEOUT", "10s")
	_, err := loadAIConfig()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownDriverAndProvider(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	_, err := loadStoreConfig()
	assert.Error(t, err)

	t.Setenv("CHAT_PROVIDER", "carrier-pigeon")
	_, err = loadAIConfig()
	assert.Error(t, err)
}

func TestSQLiteDefaultPath(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("STORE_PATH", "")
	cfg, err := loadStoreConfig()
	require.NoError(t, err)
	assert.Equal(t, "./data/chatrooms.db", cfg.Path)
}

func TestAIConfigEnabled(t *testing.T) {
	assert.False(t, AIConfig{Provider: ProviderOpenAI, Model: "gpt-3.5-turbo"}.Enabled())
	assert.True(t, AIConfig{Provider: ProviderOpenAI, Model: "gpt-3.5-turbo", APIKey: "sk"}.Enabled())
	assert.True(t, AIConfig{Provider: ProviderArk, ArkModel: "ep", ArkAccessKey: "ak", ArkSecretKey: "sk"}.Enabled())
	assert.False(t, AIConfig{Provider: ProviderArk, ArkModel: "ep"}.Enabled())
}

func TestOpenMemoryBackend(t *testing.T) {
	backend, err := StoreConfig{Driver: DriverMemory}.OpenBackend(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryBackend{}, backend)

	_, err = StoreConfig{Driver: "tape"}.OpenBackend(context.Background())
	assert.Error(t, err)
}
