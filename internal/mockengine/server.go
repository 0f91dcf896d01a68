package mockengine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/swarm"
	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/engine"
	"github.com/go-chi/chi/v5"
)

type Config struct {
	// Dialer answers every request; it is dialed with the request's Host so
	// one dialer can back several servers.
	Dialer engine.Dialer
	Port   string
	Logger *slog.Logger
}

type server struct {
	dialer engine.Dialer
	logger *slog.Logger
}

type clientKey struct{}

// NewServer exposes an engine.Dialer as the Docker Engine API subset used
// by swarmman.
func NewServer(cfg *Config) *http.Server {
	return &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: NewHandler(cfg.Dialer, cfg.Logger),
	}
}

func NewHandler(dialer engine.Dialer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	s := &server{dialer: dialer, logger: logger}

	router := chi.NewRouter()
	router.Get("/_ping", handlePing)
	router.Route("/{version}", func(r chi.Router) {
		r.Use(s.withClient)
		r.Get("/_ping", handlePing)

		r.Get("/nodes", s.handleNodeList)
		r.Get("/nodes/{id}", s.handleNodeInspect)
		r.Post("/nodes/{id}/update", s.handleNodeUpdate)

		r.Get("/swarm", s.handleSwarmInspect)
		r.Post("/swarm/leave", s.handleSwarmLeave)

		r.Get("/services", s.handleServiceList)
		r.Get("/services/{id}", s.handleServiceInspect)
		r.Post("/services/{id}/update", s.handleServiceUpdate)
		r.Get("/tasks", s.handleTaskList)

		r.Get("/containers/json", s.handleContainerList)
		r.Get("/containers/{id}/stats", s.handleContainerStats)
	})

	return router
}

func (s *server) withClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, err := s.dialer.Dial(r.Host)
		if err != nil {
			s.respond(w, nil, err)
			return
		}
		defer client.Close()

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, client)))
	})
}

func clientFrom(r *http.Request) engine.Client {
	return r.Context().Value(clientKey{}).(engine.Client)
}

func handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Api-Version", "1.43")
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("OK"))
}

func (s *server) handleNodeList(w http.ResponseWriter, r *http.Request) {
	nodes, err := clientFrom(r).NodeList(r.Context())
	s.respond(w, nodes, err)
}

func (s *server) handleNodeInspect(w http.ResponseWriter, r *http.Request) {
	node, err := clientFrom(r).NodeInspect(r.Context(), chi.URLParam(r, "id"))
	s.respond(w, node, err)
}

func (s *server) handleNodeUpdate(w http.ResponseWriter, r *http.Request) {
	version, err := parseVersion(r)
	if err != nil {
		s.respond(w, nil, err)
		return
	}

	var spec swarm.NodeSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		s.respond(w, nil, errors.Join(cluster.ErrValidation, err))
		return
	}

	s.respond(w, nil, clientFrom(r).NodeUpdate(r.Context(), chi.URLParam(r, "id"), version, spec))
}

func (s *server) handleSwarmInspect(w http.ResponseWriter, r *http.Request) {
	sw, err := clientFrom(r).SwarmInspect(r.Context())
	s.respond(w, sw, err)
}

func (s *server) handleSwarmLeave(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	s.respond(w, nil, clientFrom(r).SwarmLeave(r.Context(), force))
}

func (s *server) handleServiceList(w http.ResponseWriter, r *http.Request) {
	services, err := clientFrom(r).ServiceList(r.Context())
	s.respond(w, services, err)
}

func (s *server) handleServiceInspect(w http.ResponseWriter, r *http.Request) {
	service, err := clientFrom(r).ServiceInspect(r.Context(), chi.URLParam(r, "id"))
	s.respond(w, service, err)
}

func (s *server) handleServiceUpdate(w http.ResponseWriter, r *http.Request) {
	version, err := parseVersion(r)
	if err != nil {
		s.respond(w, nil, err)
		return
	}

	var spec swarm.ServiceSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		s.respond(w, nil, errors.Join(cluster.ErrValidation, err))
		return
	}

	if err := clientFrom(r).ServiceUpdate(r.Context(), chi.URLParam(r, "id"), version, spec); err != nil {
		s.respond(w, nil, err)
		return
	}

	s.respond(w, types.ServiceUpdateResponse{}, nil)
}

func (s *server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	args, err := filters.FromJSON(r.URL.Query().Get("filters"))
	if err != nil {
		s.respond(w, nil, errors.Join(cluster.ErrValidation, err))
		return
	}

	var serviceID string
	if ids := args.Get("service"); len(ids) > 0 {
		serviceID = ids[0]
	}

	tasks, err := clientFrom(r).TaskList(r.Context(), serviceID)
	s.respond(w, tasks, err)
}

func (s *server) handleContainerList(w http.ResponseWriter, r *http.Request) {
	containers, err := clientFrom(r).ContainerList(r.Context())
	s.respond(w, containers, err)
}

func (s *server) handleContainerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := clientFrom(r).ContainerStats(r.Context(), chi.URLParam(r, "id"))
	s.respond(w, stats, err)
}

func parseVersion(r *http.Request) (swarm.Version, error) {
	index, err := strconv.ParseUint(r.URL.Query().Get("version"), 10, 64)
	if err != nil {
		return swarm.Version{}, errors.Join(cluster.ErrValidation, err)
	}

	return swarm.Version{Index: index}, nil
}

func (s *server) respond(w http.ResponseWriter, body any, err error) {
	w.Header().Set("Content-Type", "application/json")

	if err != nil {
		w.WriteHeader(statusCode(err))
		body = types.ErrorResponse{Message: err.Error()}
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if body == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to encode response", slog.Any("error", err))
	}
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, cluster.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cluster.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, cluster.ErrConflictRejected):
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}
