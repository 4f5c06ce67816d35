// Package api exposes the watch request endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

// Watches is the registry surface served over HTTP.
type Watches interface {
	Create(ctx context.Context, req domain.WatchRequest) (string, error)
	Delete(id string)
	List() []domain.WatchInfo
	IDs() []string
}

type Server struct {
	watches     Watches
	gatherer    prometheus.Gatherer
	corsOrigins []string
	logger      *zap.Logger
}

func NewServer(w Watches, g prometheus.Gatherer, corsOrigins []string, logger *zap.Logger) *Server {
	return &Server{watches: w, gatherer: g, corsOrigins: corsOrigins, logger: logger.Named("api")}
}

// CreateWatchRequest is the body of POST /v1/watches.
type CreateWatchRequest struct {
	CloudProviderID string `json:"cloudProviderId"`
	ClusterID       string `json:"clusterId,omitempty"`
	ClusterName     string `json:"clusterName,omitempty"`
	ResourceKind    string `json:"resourceKind"`
	CredentialsRef  string `json:"credentialsRef"`
}

type CreateWatchResponse struct {
	WatchID string `json:"watchId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/v1/watches", s.handleCreate).Methods("POST")
	router.HandleFunc("/v1/watches", s.handleList).Methods("GET")
	router.HandleFunc("/v1/watches/{id}", s.handleDelete).Methods("DELETE")

	router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(router)
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body CreateWatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.CloudProviderID == "" {
		writeError(w, http.StatusBadRequest, errors.New("cloudProviderId is required"))
		return
	}
	kind, err := domain.ParseResourceKind(body.ResourceKind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	clusterID := body.ClusterID
	if clusterID == "" {
		clusterID = body.CloudProviderID
	}
	req := domain.WatchRequest{
		Cluster: domain.ClusterIdentity{
			CloudProviderID: body.CloudProviderID,
			ClusterID:       clusterID,
			ClusterName:     body.ClusterName,
		},
		Kind:           kind,
		CredentialsRef: body.CredentialsRef,
	}

	existed := slices.Contains(s.watches.IDs(), req.Key().ID())
	id, err := s.watches.Create(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrUnsupportedResourceKind):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrClusterUnreachable):
			status = http.StatusServiceUnavailable
		}
		s.logger.Warn("Create watch failed", zap.Stringer("key", req.Key()), zap.Error(err))
		writeError(w, status, err)
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	writeJSON(w, status, CreateWatchResponse{WatchID: id})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.watches.Delete(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.watches.List())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
