package api

import (
	"encoding/json"
	"io"
	"net/http"
	"runtime"
	"strconv"

	"github.com/slskd/slskgo/pkg/config"
	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/log"
	"github.com/slskd/slskgo/pkg/soul"
	"github.com/slskd/slskgo/pkg/types"
)

// maxYAMLBody bounds the accepted size of an uploaded configuration
// document.
const maxYAMLBody = 1 << 20

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsUnauthorized(err):
		return http.StatusUnauthorized
	case errdefs.IsConflict(err) || errdefs.IsScanInProgress(err):
		return http.StatusConflict
	case errdefs.IsValidation(err) || errdefs.IsShareValidation(err):
		return http.StatusBadRequest
	case errdefs.IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.app.State())
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.logger.Info().Msg("shutdown requested")
	s.app.Shutdown()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.logger.Info().Msg("restart requested")
	s.app.Restart()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGC(w http.ResponseWriter, r *http.Request) {
	runtime.GC()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetOptions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.app.Options())
}

func (s *Server) handleGetStartupOptions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.app.StartupOptions())
}

func (s *Server) handleGetOptionsYAML(w http.ResponseWriter, r *http.Request) {
	text, err := s.app.OptionsYAML()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	io.WriteString(w, text)
}

func (s *Server) handlePutOptionsYAML(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxYAMLBody))
	if err != nil {
		s.writeError(w, errdefs.Validationf("failed to read body"))
		return
	}
	if err := s.app.SetOptionsYAML(string(body)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValidateOptionsYAML(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxYAMLBody))
	if err != nil {
		s.writeError(w, errdefs.Validationf("failed to read body"))
		return
	}
	if _, err := config.Parse(body); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Connect(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Disconnect(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// createSearchRequest is the POST /searches body. An empty id gets a
// generated UUID; an empty scope searches the whole network.
type createSearchRequest struct {
	ID         string     `json:"id"`
	SearchText string     `json:"searchText"`
	Scope      soul.Scope `json:"scope"`
}

func (s *Server) handleListSearches(w http.ResponseWriter, r *http.Request) {
	list, err := s.searches.List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []types.Search{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateSearch(w http.ResponseWriter, r *http.Request) {
	var req createSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errdefs.Validationf("malformed body: %v", err))
		return
	}

	search, err := s.searches.Create(req.ID, req.SearchText, req.Scope)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, search)
}

func (s *Server) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	includeResponses, _ := strconv.ParseBool(r.URL.Query().Get("includeResponses"))

	search, err := s.searches.Find(r.PathValue("id"), includeResponses)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, search)
}

func (s *Server) handleCancelSearch(w http.ResponseWriter, r *http.Request) {
	if err := s.searches.Cancel(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSearch(w http.ResponseWriter, r *http.Request) {
	if err := s.searches.Delete(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	count := 0
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, errdefs.Validationf("count must be a non-negative integer"))
			return
		}
		count = n
	}

	entries := s.logs.Recent(count)
	if entries == nil {
		entries = []log.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}
