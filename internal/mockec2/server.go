package mockec2

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/falmar/swarmman/internal/ec2metadata"
	"github.com/go-chi/chi/v5"
)

const token = "mock-token"

type Config struct {
	InstanceID string
	Port       string
	Logger     *slog.Logger
}

type server struct {
	instanceID string
	logger     *slog.Logger

	mu               sync.RWMutex
	spotInterruption *ec2metadata.SpotInterruptionResponse
	rebalance        *ec2metadata.ASGReBalanceResponse
}

func NewServer(cfg *Config) *http.Server {
	return &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: NewHandler(cfg),
	}
}

// NewHandler serves the IMDSv2 subset read by the interruption watcher.
// POST /spot-interruption and POST /asg-rebalance arm the matching notice.
func NewHandler(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &server{
		instanceID: cfg.InstanceID,
		logger:     logger,
	}

	router := chi.NewRouter()

	router.Put("/latest/api/token", s.handleGetToken)

	router.Group(func(r chi.Router) {
		r.Use(requireToken)
		r.Get("/latest/meta-data/instance-id", s.handleInstanceID)
		r.Get("/latest/meta-data/spot/instance-action", s.handleSpotInterruption)
		r.Get("/latest/meta-data/events/recommendations/rebalance", s.handleASGReBalance)
	})

	router.Post("/spot-interruption", s.mockSpotInterruption)
	router.Post("/asg-rebalance", s.mockASGReBalance)

	return router
}

func requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-aws-ec2-metadata-token") != token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-aws-ec2-metadata-token-ttl-seconds") == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(token))
}

func (s *server) handleInstanceID(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(s.instanceID))
}

func (s *server) handleASGReBalance(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	notice := s.rebalance
	s.mu.RUnlock()

	s.writeNotice(w, notice != nil, notice)
}

func (s *server) handleSpotInterruption(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	notice := s.spotInterruption
	s.mu.RUnlock()

	s.writeNotice(w, notice != nil, notice)
}

func (s *server) writeNotice(w http.ResponseWriter, armed bool, notice any) {
	if !armed {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(notice); err != nil {
		s.logger.Error("failed to encode notice", slog.Any("error", err))
	}
}

func (s *server) mockSpotInterruption(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.spotInterruption = &ec2metadata.SpotInterruptionResponse{
		Action: "terminate",
		Time:   time.Now().Add(2 * time.Minute).UTC().Truncate(time.Second),
	}
	s.mu.Unlock()

	s.logger.Info("spot interruption armed", slog.String("instance_id", s.instanceID))
}

func (s *server) mockASGReBalance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.rebalance = &ec2metadata.ASGReBalanceResponse{
		Time: time.Now().UTC().Truncate(time.Second),
	}
	s.mu.Unlock()

	s.logger.Info("rebalance recommendation armed", slog.String("instance_id", s.instanceID))
}
