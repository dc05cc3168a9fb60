package config

import "os"

// EnvConfig holds process-wide overrides read from the environment, layered
// on top of a profile's YAML configuration.
type EnvConfig struct {
	LogLevel      string
	DatabaseURL   string // non-empty selects the Postgres Store backend
	LLMServiceURL string
	ProfilesDir   string
	NodesFile     string
}

// LoadEnv reads ambient overrides from the environment.
func LoadEnv() *EnvConfig {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	llmURL := os.Getenv("LLM_SERVICE_URL")
	if llmURL == "" {
		llmURL = "http://host.docker.internal:1234/v1/chat/completions"
	}

	profilesDir := os.Getenv("AGENT_PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "config/profiles"
	}

	nodesFile := os.Getenv("AGENT_NODES_FILE")
	if nodesFile == "" {
		nodesFile = "config/nodes.yaml"
	}

	return &EnvConfig{
		LogLevel:      logLevel,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		LLMServiceURL: llmURL,
		ProfilesDir:   profilesDir,
		NodesFile:     nodesFile,
	}
}
