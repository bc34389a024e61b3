package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sandeepprukmani-maker/jobstream/internal/job"
	"github.com/sandeepprukmani-maker/jobstream/internal/protocol"
	"github.com/sandeepprukmani-maker/jobstream/internal/runner"
)

type Server struct {
	store          *job.Store
	reg            *Registry
	runner         *runner.Runner
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
}

func NewServer(store *job.Store, reg *Registry, run *runner.Runner, allowedOrigins []string, authToken string) *Server {
	s := &Server{
		store:          store,
		reg:            reg,
		runner:         run,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      authToken,
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/api/jobs/", s.handleJob)
	mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	c, err := s.reg.Add(conn)
	if err != nil {
		log.Printf("ws reject %s: %v", r.RemoteAddr, err)
		conn.Close()
		return
	}
	log.Printf("observer connected: %s", r.RemoteAddr)

	go func() {
		defer func() {
			s.reg.Remove(c)
			log.Printf("observer disconnected: %s", r.RemoteAddr)
		}()
		s.readLoop(c)
	}()
}

// readLoop handles inbound control frames for one connection. A frame that
// fails to decode is dropped and reported back as an error frame; the
// connection and its subscription survive.
func (s *Server) readLoop(c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			log.Printf("dropping inbound frame: %v", err)
			s.sendError(c, "unrecognized frame")
			continue
		}

		switch msg.Type {
		case protocol.TypeSubscribe:
			if msg.SessionID == "" {
				s.sendError(c, "subscribe requires sessionId")
				continue
			}
			s.reg.Subscribe(msg.SessionID, c)
		default:
			// Observers only send subscribe; anything else is dropped.
			log.Printf("dropping unexpected %s frame from observer", msg.Type)
		}
	}
}

func (s *Server) sendError(c *client, text string) {
	data, err := json.Marshal(protocol.ChannelError(text))
	if err != nil {
		return
	}
	c.trySend(data)
}

// handleJobs serves GET /api/jobs (list) and POST /api/jobs (submit).
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		records, err := s.store.List()
		if err != nil {
			http.Error(w, fmt.Sprintf("list jobs: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(records)

	case http.MethodPost:
		if s.runner == nil {
			http.Error(w, "job submission not available", http.StatusServiceUnavailable)
			return
		}
		var req runner.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if len(req.Steps) == 0 {
			http.Error(w, "job needs at least one step", http.StatusBadRequest)
			return
		}
		// Jobs outlive the submitting request; execution is bounded by
		// process lifetime, not request lifetime.
		rec, err := s.runner.Submit(context.Background(), req)
		if err != nil {
			http.Error(w, fmt.Sprintf("submit job: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(rec)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJob serves GET /api/jobs/{id}, the poll endpoint. 404 means the job
// is not known yet; observers treat that as non-terminal.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := url.PathUnescape(strings.TrimPrefix(r.URL.Path, "/api/jobs/"))
	if err != nil || id == "" || strings.Contains(id, "/") {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	rec, err := s.store.Get(id)
	if errors.Is(err, job.ErrNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("get job: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Jobstream-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
