package config_test

import (
	"testing"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadEnv_Defaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LLM_SERVICE_URL", "")
	t.Setenv("AGENT_PROFILES_DIR", "")
	t.Setenv("AGENT_NODES_FILE", "")

	cfg := config.LoadEnv()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL, "no DATABASE_URL means the SQLite backend is selected")
	assert.Equal(t, "config/profiles", cfg.ProfilesDir)
	assert.Equal(t, "config/nodes.yaml", cfg.NodesFile)
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://agent@localhost:5432/agent")
	t.Setenv("LLM_SERVICE_URL", "http://remote-llm:8080/v1")

	cfg := config.LoadEnv()

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://agent@localhost:5432/agent", cfg.DatabaseURL)
	assert.Equal(t, "http://remote-llm:8080/v1", cfg.LLMServiceURL)
}
