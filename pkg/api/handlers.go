package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-flowscan/pkg/binetflow"
	"github.com/dd0wney/cluso-flowscan/pkg/flow"
	"github.com/dd0wney/cluso-flowscan/pkg/logging"
	"github.com/dd0wney/cluso-flowscan/pkg/report"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   s.version,
		Uptime:    time.Since(s.startTime).String(),
		Timestamp: time.Now().UTC(),
		Graph:     s.engine.Graph().Stats(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !s.AuthEnabled() {
		s.respondError(w, http.StatusNotFound, "Authentication is not configured")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.userStore.GetUserByUsername(req.Username)
	if err != nil || !s.userStore.VerifyPassword(user, req.Password) {
		// Same response for unknown user and bad password.
		s.respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.jwtManager.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		s.logger.Error("token generation failed", logging.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	s.respondJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(s.jwtManager.TokenDuration()),
		Role:      user.Role,
	})
}

// handleAPIKeys issues and lists API keys. Admin only (route gate).
func (s *Server) handleAPIKeys(w http.ResponseWriter, r *http.Request) {
	if s.apiKeys == nil {
		s.respondError(w, http.StatusNotFound, "API keys are not configured")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req CreateKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		keyString, key, err := s.apiKeys.CreateKey(req.Label, req.Role)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Info("api key issued",
			logging.String("key_id", key.ID),
			logging.String("label", key.Label),
			logging.String("role", key.Role))
		// The plaintext key is returned exactly once.
		s.respondJSON(w, http.StatusCreated, CreateKeyResponse{Key: keyString, APIKey: key})

	case http.MethodGet:
		s.respondJSON(w, http.StatusOK, map[string]any{"keys": s.apiKeys.ListKeys()})

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleAPIKey revokes one key by ID.
func (s *Server) handleAPIKey(w http.ResponseWriter, r *http.Request) {
	if s.apiKeys == nil {
		s.respondError(w, http.StatusNotFound, "API keys are not configured")
		return
	}
	if r.Method != http.MethodDelete {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	keyID := strings.TrimPrefix(r.URL.Path, "/api/v1/auth/keys/")
	if keyID == "" {
		s.respondError(w, http.StatusBadRequest, "Missing key ID")
		return
	}
	if err := s.apiKeys.RevokeKey(keyID); err != nil {
		s.respondError(w, http.StatusNotFound, "API key not found")
		return
	}
	s.logger.Info("api key revoked", logging.String("key_id", keyID))
	s.respondJSON(w, http.StatusOK, map[string]string{"revoked": keyID})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	req := ScanRequest{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	constraints := s.defaults
	if req.DurationRatioMin != 0 {
		constraints.DurationRatioMin = req.DurationRatioMin
	}
	if req.ProtoFirst != "" {
		constraints.ProtoFirst = req.ProtoFirst
	}
	if req.ProtoSecond != "" {
		constraints.ProtoSecond = req.ProtoSecond
	}
	if req.TimeOrder != nil {
		constraints.TimeOrder = *req.TimeOrder
	}

	result, err := s.engine.ScanWithWorkers(r.Context(), constraints, req.Workers)
	if err != nil {
		switch {
		case flow.IsInvalidConstraint(err):
			s.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, flow.ErrScanAborted):
			s.respondError(w, http.StatusServiceUnavailable, "Scan aborted")
		default:
			s.logger.Error("scan failed", logging.Error(err))
			s.respondError(w, http.StatusInternalServerError, "Scan failed")
		}
		return
	}

	if req.Save && s.store != nil {
		dataset := req.Dataset
		if dataset == "" {
			dataset = "adhoc"
		}
		rep := report.NewReport(dataset, constraints, result)
		if err := s.store.SaveReport(r.Context(), rep); err != nil {
			// The scan itself succeeded; log and keep going.
			s.logger.Error("failed to persist report",
				logging.RunID(result.RunID.String()), logging.Error(err))
		}
	}

	s.respondJSON(w, http.StatusOK, ScanResponse{
		RunID:        result.RunID.String(),
		Constraints:  constraints,
		MatchCount:   len(result.Matches),
		VisitedEdges: result.VisitedEdges,
		SkippedEdges: result.SkippedEdges,
		ElapsedMS:    result.Elapsed.Milliseconds(),
		Matches:      result.Rows(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	g := s.engine.Graph()
	s.respondJSON(w, http.StatusOK, StatsResponse{
		Graph:  g.Stats(),
		Frozen: g.Frozen(),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	g := s.engine.Graph()
	if g.Frozen() {
		s.respondError(w, http.StatusConflict,
			"Graph is frozen; ingest must happen before the first scan")
		return
	}

	reader, err := binetflow.NewReader(r.Body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	loader := binetflow.NewLoader(g, binetflow.LoaderConfig{
		Logger:  s.logger,
		Metrics: s.metrics,
	})
	result, err := loader.Load(reader)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, IngestResponse{
		Loaded:    result.Loaded,
		Malformed: result.Malformed,
		ElapsedMS: result.Elapsed.Milliseconds(),
		Graph:     g.Stats(),
	})
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusNotFound, "Report store is not configured")
		return
	}
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	reports, err := s.store.ListReports(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list reports", logging.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Failed to list reports")
		return
	}
	s.respondJSON(w, http.StatusOK, reports)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusNotFound, "Report store is not configured")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/reports/")
	id, err := uuid.Parse(idStr)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid report ID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		rep, err := s.store.GetReport(r.Context(), id)
		if err != nil {
			if errors.Is(err, report.ErrReportNotFound) {
				s.respondError(w, http.StatusNotFound, "Report not found")
				return
			}
			s.logger.Error("failed to get report", logging.Error(err))
			s.respondError(w, http.StatusInternalServerError, "Failed to get report")
			return
		}
		s.respondJSON(w, http.StatusOK, rep)

	case http.MethodDelete:
		if err := s.store.DeleteReport(r.Context(), id); err != nil {
			if errors.Is(err, report.ErrReportNotFound) {
				s.respondError(w, http.StatusNotFound, "Report not found")
				return
			}
			s.logger.Error("failed to delete report", logging.Error(err))
			s.respondError(w, http.StatusInternalServerError, "Failed to delete report")
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]string{"deleted": id.String()})

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
