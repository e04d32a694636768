package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/huangsam/digitaldiary/internal/contract"
)

// Input limits of the collaborator endpoints.
const (
	maxJSONBody      = 1 << 20
	maxAudioBytes    = 25 << 20
	maxStoryChars    = 10000
	maxTitleChars    = 5000
	storyMaxTokens   = 2000
	titleMaxTokens   = 60
	fallbackTitle    = "Untitled Story"
	audioFilename    = "recording.webm"
	audioContentType = "audio/webm"
	audioLanguage    = "en"
)

// errUpstream marks a non-2xx answer from the AI service.
var errUpstream = errors.New("upstream returned an error status")

// Server implements the collaborator endpoints.
type Server struct {
	cfg    Config
	client *http.Client
	mux    *http.ServeMux
}

// NewServer returns the API handler. A nil client gets one with cfg.UpstreamTimeout.
func NewServer(cfg Config, client *http.Client) *Server {
	if client == nil {
		client = &http.Client{Timeout: cfg.UpstreamTimeout}
	}
	s := &Server{cfg: cfg, client: client, mux: http.NewServeMux()}
	s.mux.HandleFunc("/api/punctuate", postOnly(s.handlePunctuate))
	s.mux.HandleFunc("/api/title", postOnly(s.handleTitle))
	s.mux.HandleFunc("/api/transcribe", postOnly(s.handleTranscribe))
	s.mux.HandleFunc("/api/verify-pin", postOnly(s.handleVerifyPin))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	s.mux.ServeHTTP(rw, req)
}

// NewOriginHandler serves the static app from staticDir and the API under /api/.
func NewOriginHandler(staticDir string, api http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", api)
	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

func postOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			writeError(rw, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		next(rw, req)
	}
}

// decodeJSON reads a small JSON body into v.
func decodeJSON(req *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(req.Body, maxJSONBody)).Decode(v)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, map[string]string{"error": msg})
}

// writeUpstreamError maps a failed upstream call to 502 or 500.
func writeUpstreamError(rw http.ResponseWriter, what, service string, err error) {
	if errors.Is(err, errUpstream) {
		contract.LogWarn(what+" upstream error", err)
		writeError(rw, http.StatusBadGateway, service+" failed")
		return
	}
	contract.LogWarn(what+" error", err)
	writeError(rw, http.StatusInternalServerError, "Internal server error")
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
