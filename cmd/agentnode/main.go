// Command agentnode runs a single agent node's Control Surface: the
// signed-envelope Interop Bridge, the tiered tool Registry, the Daily
// Check-in Scheduler, and the HTTP API that fronts all three.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/backup"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/bridge"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/config"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/envelope"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/eventbus"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/llm"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/policy"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/scheduler"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/server"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/store"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/tools"

	_ "github.com/lib/pq" // postgres driver, selected by DATABASE_URL
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	profileName := os.Getenv("PROFILE_NAME")
	if profileName == "" {
		logger.Error("agentnode: PROFILE_NAME is required")
		return 1
	}

	env := config.LoadEnv()
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(env.LogLevel)}))

	dataRoot, err := config.DefaultDataRoot()
	if err != nil {
		logger.Error("agentnode: resolving data root", "error", err)
		return 1
	}
	if override := os.Getenv("AGENT_DATA_ROOT"); override != "" {
		dataRoot = override
	}

	profile, err := config.LoadProfile(env.ProfilesDir, profileName, dataRoot)
	if err != nil {
		logger.Error("agentnode: loading profile", "error", err)
		return 1
	}
	if err := config.EnsureDirectories(profile); err != nil {
		logger.Error("agentnode: preparing data directories", "error", err)
		return 1
	}

	nodes, err := config.LoadNodeDirectory(env.NodesFile)
	if err != nil {
		logger.Error("agentnode: loading node directory", "error", err)
		return 1
	}

	var st store.Store
	if env.DatabaseURL != "" {
		st, err = store.OpenPostgres(env.DatabaseURL)
	} else {
		st, err = store.OpenSQLite(profile.Paths.DBPath)
	}
	if err != nil {
		logger.Error("agentnode: opening store", "error", err)
		return 1
	}
	defer st.Close()

	identityMode, err := envelope.LoadIdentityMode(filepath.Join(profile.Paths.SecretsDir, "identity_mode"))
	if err != nil {
		logger.Error("agentnode: loading identity mode", "error", err)
		return 1
	}

	sharedKey, err := loadOrGenerateSharedKey(profile.Paths.SecretsDir)
	if err != nil {
		logger.Error("agentnode: loading shared HMAC key", "error", err)
		return 1
	}

	signer, err := loadOrGenerateSigner(profile.Paths.SecretsDir)
	if err != nil {
		logger.Error("agentnode: loading identity signer", "error", err)
		return 1
	}

	b := bridge.New(profile.Name, profile.HealthPort, profile.Paths.SecretsDir, identityMode, nodes, st, sharedKey, signer, logger)

	overlay, err := loadCELOverlay(os.Getenv("POLICY_CEL_RULES_FILE"))
	if err != nil {
		logger.Error("agentnode: loading CEL overlay", "error", err)
		return 1
	}
	engine := policy.NewEngine(profile.AllowedToolTiers, overlay)
	registry := tools.NewRegistry(engine, st, profile.Name)
	registerNativeTools(registry)
	if err := registerWASMTools(context.Background(), registry, profile.Paths.SandboxDir, engine); err != nil {
		logger.Error("agentnode: loading WASM tools", "error", err)
		return 1
	}

	var uploader backup.Uploader
	if bucket := os.Getenv("BACKUP_S3_BUCKET"); bucket != "" {
		s3up, err := backup.NewS3Uploader(context.Background(), backup.S3UploaderConfig{
			Bucket:   bucket,
			Region:   os.Getenv("BACKUP_S3_REGION"),
			Endpoint: os.Getenv("BACKUP_S3_ENDPOINT"),
			Prefix:   os.Getenv("BACKUP_S3_PREFIX"),
			Profile:  profile.Name,
		})
		if err != nil {
			logger.Error("agentnode: configuring S3 backup uploader", "error", err)
			return 1
		}
		uploader = s3up
	}

	var events *eventbus.Publisher
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		events, err = eventbus.New(redisURL, "")
		if err != nil {
			logger.Error("agentnode: connecting to event bus", "error", err)
			return 1
		}
		defer events.Close()
	}

	var replier server.LLMReplier
	if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" || os.Getenv("LLM_SERVICE_URL") != "" {
		client := llm.NewOpenAIClient(env.LLMServiceURL, apiKey, profile.LLMDefaultModel)
		replier = llm.NewReplier(client, "")
	}

	srv := server.New(profile, nodes, b, registry, st, uploader, events, replier, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manifest, err := loadSkillManifest(profile.Paths.BaseDataDir)
	if err != nil {
		logger.Error("agentnode: loading skills manifest", "error", err)
		return 1
	}
	wakePeriod := durationEnv("CHECKIN_WAKE_SECONDS", time.Hour)
	intervalSeconds := intEnv("CHECKIN_INTERVAL_SECONDS", 86400)
	checkins := scheduler.New(b, manifest, wakePeriod, intervalSeconds, logger)
	checkins.Start(ctx)
	defer checkins.Stop()

	addr := fmt.Sprintf(":%d", profile.HealthPort)
	httpServer := &http.Server{Addr: addr, Handler: srv.Handler()}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("agentnode: listening", "addr", addr, "profile", profile.Name)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("agentnode: shutting down")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("agentnode: server error", "error", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("agentnode: graceful shutdown failed", "error", err)
		return 1
	}
	return 0
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

func intEnv(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
