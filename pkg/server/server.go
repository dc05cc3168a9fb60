// Package server implements the Control Surface: the HTTP API exposing
// health/status, approvals, tool invocation, interop inbox, and relay.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/apierror"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/backup"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/bridge"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/config"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/envelope"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/eventbus"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/faults"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/store"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/tools"
)

// LLMReplier produces a skills-check-in reply. The zero value (nil) is
// valid and every call degrades to "LLM key missing".
type LLMReplier interface {
	Reply(ctx context.Context, question string) (string, error)
}

// Server wires the profile's Bridge, tool Registry, and Memory Store
// behind the Control Surface's HTTP routes.
type Server struct {
	profile   *config.Profile
	nodes     *config.NodeDirectory
	bridge    *bridge.Bridge
	registry  *tools.Registry
	store     store.Store
	backupLog *backup.StatusProvider
	uploader  backup.Uploader
	events    *eventbus.Publisher
	llm       LLMReplier
	startedAt time.Time
	logger    *slog.Logger

	mux     *http.ServeMux
	handler http.Handler
}

// New builds a Server, registers all routes, and assembles the wrapped
// handler (request id, read-only enforcement, rate limiting) once.
func New(profile *config.Profile, nodes *config.NodeDirectory, b *bridge.Bridge, registry *tools.Registry, st store.Store, uploader backup.Uploader, events *eventbus.Publisher, llm LLMReplier, logger *slog.Logger) *Server {
	s := &Server{
		profile:   profile,
		nodes:     nodes,
		bridge:    b,
		registry:  registry,
		store:     st,
		backupLog: backup.NewStatusProvider(profile.Paths.BaseDataDir),
		uploader:  uploader,
		events:    events,
		llm:       llm,
		startedAt: time.Now(),
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.routes()

	allowedGet := make(map[string]struct{}, len(profile.PublicReadonlyGetEndpoints))
	for _, p := range profile.PublicReadonlyGetEndpoints {
		allowedGet[p] = struct{}{}
	}
	limiter := newPerAddressLimiter(5, 10)
	readonly := readonlyMiddleware(profile.PublicReadonlyMode, allowedGet)
	s.handler = chain(s.mux, requestIDMiddleware, readonly, rateLimitMiddleware(limiter))

	return s
}

// Handler returns the fully wrapped http.Handler ready to be served.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/approvals", s.handleApprovals)
	s.mux.HandleFunc("/logs", s.handleLogs)
	s.mux.HandleFunc("/api-usage", s.handleApiUsage)
	s.mux.HandleFunc("/backup/status", s.handleBackupStatus)
	s.mux.HandleFunc("/fleet/status", s.handleFleetStatus)
	s.mux.HandleFunc("/interop/messages", s.handleInteropMessages)
	s.mux.HandleFunc("/tools/execute", s.handleToolsExecute)
	s.mux.HandleFunc("/approvals/", s.handleApprovalAction)
	s.mux.HandleFunc("/fleet/deploy", s.handleFleetDeploy)
	s.mux.HandleFunc("/interop/inbox", s.handleInteropInbox)
	s.mux.HandleFunc("/interop/relay", s.handleInteropRelay)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierror.MethodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"profile":        s.profile.Name,
		"request_id":     requestID(r.Context()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierror.MethodNotAllowed(w, r)
		return
	}
	pending, err := s.store.ListPendingApprovals(r.Context(), 1000)
	if err != nil {
		apierror.Internal(w, r, err)
		return
	}
	events, err := s.store.RecentEvents(r.Context(), 100)
	if err != nil {
		apierror.Internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profile":             s.profile.Name,
		"tool_count":          s.registry.Count(),
		"pending_approvals":   len(pending),
		"recent_events_count": len(events),
	})
}

func (s *Server) handleApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierror.MethodNotAllowed(w, r)
		return
	}
	pending, err := s.store.ListPendingApprovals(r.Context(), 100)
	if err != nil {
		apierror.Internal(w, r, err)
		return
	}
	recent, err := s.store.ListRecentApprovals(r.Context(), 100)
	if err != nil {
		apierror.Internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pending": pending, "recent": recent})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierror.MethodNotAllowed(w, r)
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := s.store.RecentEvents(r.Context(), limit)
	if err != nil {
		apierror.Internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleApiUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierror.MethodNotAllowed(w, r)
		return
	}
	var windowDays *int
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			windowDays = &n
		}
	}
	summary, err := s.store.SummarizeApiUsage(r.Context(), windowDays)
	if err != nil {
		apierror.Internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleBackupStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierror.MethodNotAllowed(w, r)
		return
	}
	code, data := s.backupLog.Summary()
	body := map[string]interface{}{"code_backup": code, "data_backup": data}
	if s.uploader != nil {
		if outcome, err := s.uploader.Upload(r.Context(), s.profile.Paths.DBPath); err == nil {
			body["remote_backup"] = outcome
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleFleetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierror.MethodNotAllowed(w, r)
		return
	}
	entries := s.nodes.List()
	report := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		report = append(report, map[string]interface{}{
			"node_id":    e.NodeID,
			"profile":    e.Profile,
			"host":       e.Host,
			"configured": e.Configured(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"peers": report})
}

func (s *Server) handleInteropMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierror.MethodNotAllowed(w, r)
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	messages, err := s.bridge.RecentMessages(r.Context(), limit)
	if err != nil {
		apierror.Internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

type toolExecuteRequest struct {
	ToolName string                 `json:"tool_name"`
	Payload  map[string]interface{} `json:"payload"`
}

func (s *Server) handleToolsExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierror.MethodNotAllowed(w, r)
		return
	}
	var req toolExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest(w, r, "invalid JSON body")
		return
	}
	if req.ToolName == "" {
		apierror.BadRequest(w, r, "tool_name is required")
		return
	}
	result, err := s.registry.Execute(r.Context(), req.ToolName, req.Payload)
	if err != nil {
		apierror.Internal(w, r, err)
		return
	}
	s.publishLatestEvent(r.Context())
	writeJSON(w, http.StatusOK, result)
}

// publishLatestEvent fans the most recent EpisodicEvent out to the event
// bus. Best-effort: publish failures are logged, not surfaced to callers.
func (s *Server) publishLatestEvent(ctx context.Context) {
	if s.events == nil {
		return
	}
	recent, err := s.store.RecentEvents(ctx, 1)
	if err != nil || len(recent) == 0 {
		return
	}
	if err := s.events.Publish(ctx, recent[0]); err != nil {
		s.logger.Warn("server: publishing event to eventbus failed", slog.Any("error", err))
	}
}

type approvalResolveRequest struct {
	Approve bool `json:"approve"`
}

func (s *Server) handleApprovalAction(w http.ResponseWriter, r *http.Request) {
	id, action, err := parseApprovalPath(r.URL.Path)
	if err != nil {
		apierror.NotFound(w, r, err.Error())
		return
	}
	if r.Method != http.MethodPost {
		apierror.MethodNotAllowed(w, r)
		return
	}

	switch action {
	case "resolve":
		var req approvalResolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierror.BadRequest(w, r, "invalid JSON body")
			return
		}
		ok, err := s.store.ResolveApproval(r.Context(), id, req.Approve)
		if err != nil {
			apierror.Internal(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": ok})
	case "execute":
		result, err := s.registry.ExecuteApproved(r.Context(), id)
		if err != nil {
			apierror.Internal(w, r, err)
			return
		}
		s.publishLatestEvent(r.Context())
		writeJSON(w, http.StatusOK, result)
	default:
		apierror.NotFound(w, r, "unknown approval action")
	}
}

func parseApprovalPath(path string) (int64, string, error) {
	var idStr, action string
	n, err := fmt.Sscanf(path, "/approvals/%s", &idStr)
	if n != 1 || err != nil {
		return 0, "", errors.New("malformed approval path")
	}
	for i := 0; i < len(idStr); i++ {
		if idStr[i] == '/' {
			action = idStr[i+1:]
			idStr = idStr[:i]
			break
		}
	}
	id, convErr := strconv.ParseInt(idStr, 10, 64)
	if convErr != nil {
		return 0, "", errors.New("approval id must be numeric")
	}
	return id, action, nil
}

func (s *Server) handleFleetDeploy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierror.MethodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted": true,
		"note":     "fleet deploy is triggered out-of-process by an external script",
	})
}

type envelopeEnvelope struct {
	Envelope envelope.Envelope `json:"envelope"`
}

func (s *Server) handleInteropInbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierror.MethodNotAllowed(w, r)
		return
	}
	raw, body, err := decodeEnvelopeRequest(r)
	if err != nil {
		apierror.BadRequest(w, r, err.Error())
		return
	}

	accepted, err := s.bridge.Receive(r.Context(), raw, body.Envelope)
	if err != nil {
		writeBridgeError(w, r, err)
		return
	}

	response := map[string]interface{}{"accepted": true}
	if accepted.TaskType == "skills_checkin" {
		response["reply"] = s.skillsCheckinReply(r.Context(), accepted.Payload)
	}
	writeJSON(w, http.StatusOK, response)
}

type relayRequest struct {
	RelayerSource string            `json:"relayer_source"`
	Envelope      envelope.Envelope `json:"envelope"`
}

func (s *Server) handleInteropRelay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierror.MethodNotAllowed(w, r)
		return
	}
	var req relayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest(w, r, "invalid JSON body")
		return
	}
	result, err := s.bridge.Relay(r.Context(), req.RelayerSource, req.Envelope)
	if err != nil {
		writeBridgeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeEnvelopeRequest(r *http.Request) (map[string]interface{}, envelopeEnvelope, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, envelopeEnvelope{}, errors.New("reading request body")
	}

	var full map[string]interface{}
	if err := json.Unmarshal(data, &full); err != nil {
		return nil, envelopeEnvelope{}, errors.New("invalid JSON body")
	}
	var body envelopeEnvelope
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, envelopeEnvelope{}, errors.New("invalid envelope body")
	}
	raw, _ := full["envelope"].(map[string]interface{})
	return raw, body, nil
}

func writeBridgeError(w http.ResponseWriter, r *http.Request, err error) {
	var secErr *faults.SecurityError
	var valErr *faults.ValidationError
	var cfgErr *faults.ConfigError
	var transErr *faults.TransportError
	switch {
	case errors.As(err, &secErr):
		apierror.Forbidden(w, r, secErr.Error())
	case errors.As(err, &valErr):
		apierror.BadRequest(w, r, valErr.Error())
	case errors.As(err, &cfgErr):
		apierror.BadRequest(w, r, cfgErr.Error())
	case errors.As(err, &transErr):
		apierror.Write(w, r, http.StatusBadGateway, "Bad Gateway", transErr.Error())
	default:
		apierror.Internal(w, r, err)
	}
}

func (s *Server) skillsCheckinReply(ctx context.Context, payload map[string]interface{}) map[string]interface{} {
	if s.llm == nil {
		return map[string]interface{}{"ok": false, "error": "LLM key missing"}
	}
	question, _ := payload["question"].(string)
	reply, err := s.llm.Reply(ctx, question)
	if err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}
	}
	return map[string]interface{}{"ok": true, "message": reply}
}
