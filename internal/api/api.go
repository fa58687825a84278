package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/joescharf/issues/internal/issues"
)

// maxBodyBytes caps request bodies; larger bodies are treated as empty.
const maxBodyBytes = 1 << 20

// Server provides the REST API handlers.
type Server struct {
	issues *issues.Service
	log    *slog.Logger
}

// NewServer creates a new API server.
func NewServer(svc *issues.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{issues: svc, log: logger}
}

// Router returns an http.Handler for the API routes.
//
// Every response is 200; failures are reported in the JSON body.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/issues/{project}", s.listIssues)
	mux.HandleFunc("POST /api/issues/{project}", s.createIssue)
	mux.HandleFunc("PUT /api/issues/{project}", s.updateIssue)
	mux.HandleFunc("DELETE /api/issues/{project}", s.deleteIssue)

	return corsMiddleware(s.withRequestLogging(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult answers 200 with either the success value or the failure payload.
func writeResult(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeJSON(w, http.StatusOK, issues.PayloadFor(err))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// readFields decodes a JSON or form-encoded body into flat string values.
// An unreadable body yields no fields, which the issue operations reject with
// their usual payloads.
func (s *Server) readFields(w http.ResponseWriter, r *http.Request) issues.Values {
	vals := issues.Values{}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		// ParseForm skips the body of DELETE requests, so decode it directly.
		data, err := io.ReadAll(r.Body)
		if err != nil {
			s.log.Debug("unreadable form body", "error", err)
			return vals
		}
		form, err := url.ParseQuery(string(data))
		if err != nil {
			s.log.Debug("unreadable form body", "error", err)
			return vals
		}
		firstValues(vals, form)
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			s.log.Debug("unreadable form body", "error", err)
			return vals
		}
		firstValues(vals, r.MultipartForm.Value)
	default:
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			s.log.Debug("unreadable JSON body", "error", err)
			return vals
		}
		for key, v := range raw {
			vals[key] = scalarString(v)
		}
	}
	return vals
}

// firstValues copies the first value of each form key into vals.
func firstValues(vals issues.Values, form map[string][]string) {
	for key, values := range form {
		if len(values) > 0 {
			vals[key] = values[0]
		}
	}
}

// scalarString renders a decoded JSON scalar as its form-encoded equivalent.
// Objects and arrays become "", so they never count as a field.
func scalarString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// --- Issues ---

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	found, err := s.issues.List(r.Context(), project, r.URL.Query())
	if err != nil {
		s.log.Error("list issues failed", "project", project, "error", err)
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.issues.Create(r.Context(), r.PathValue("project"), s.readFields(w, r))
	writeResult(w, issue, err)
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	res, err := s.issues.Update(r.Context(), s.readFields(w, r))
	writeResult(w, res, err)
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	fields := s.readFields(w, r)
	res, err := s.issues.Delete(r.Context(), fields[issues.FieldID])
	writeResult(w, res, err)
}
