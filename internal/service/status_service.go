package service

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
	"github.com/kubilitics/kubilitics-appstatus/internal/pkg/statuscache"
	"github.com/kubilitics/kubilitics-appstatus/internal/pkg/validate"
)

// Engine is the part of *topology.Engine the service uses.
type Engine interface {
	Refresh(ctx context.Context, req *models.TopologyRequest) (*models.TopologyStatus, error)
	Pending(req *models.TopologyRequest) *models.TopologyStatus
}

// AppStatusService computes application statuses.
type AppStatusService interface {
	// GetStatus returns a cached status for an unchanged topology, else refreshes.
	GetStatus(ctx context.Context, req *models.TopologyRequest) (*models.TopologyStatus, error)
	// Refresh always recomputes. Cached entries of the application, including
	// those of older topologies, are dropped first.
	Refresh(ctx context.Context, req *models.TopologyRequest) (*models.TopologyStatus, error)
	// Pending returns the spinner snapshot for req.
	Pending(req *models.TopologyRequest) (*models.TopologyStatus, error)
}

type appStatusService struct {
	engine Engine
	cache  *statuscache.Cache
	hub    string
	log    *zap.Logger
}

// NewAppStatusService wires the engine to a result cache. cache may be nil.
func NewAppStatusService(engine Engine, cache *statuscache.Cache, hub string, log *zap.Logger) AppStatusService {
	if cache == nil {
		cache = statuscache.New(0, 0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &appStatusService{engine: engine, cache: cache, hub: hub, log: log.Named("service")}
}

func (s *appStatusService) GetStatus(ctx context.Context, req *models.TopologyRequest) (*models.TopologyStatus, error) {
	if err := validate.TopologyRequest(req); err != nil {
		return nil, err
	}
	key, err := s.cacheKey(req)
	if err != nil {
		return nil, err
	}
	if st, ok := s.cache.Get(key); ok {
		return st, nil
	}
	return s.refresh(ctx, req, key)
}

func (s *appStatusService) Refresh(ctx context.Context, req *models.TopologyRequest) (*models.TopologyStatus, error) {
	if err := validate.TopologyRequest(req); err != nil {
		return nil, err
	}
	key, err := s.cacheKey(req)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateApp(s.hubFor(req), req.Application.Namespace, req.Application.Name)
	return s.refresh(ctx, req, key)
}

func (s *appStatusService) Pending(req *models.TopologyRequest) (*models.TopologyStatus, error) {
	if err := validate.TopologyRequest(req); err != nil {
		return nil, err
	}
	return s.engine.Pending(req), nil
}

func (s *appStatusService) refresh(ctx context.Context, req *models.TopologyRequest, key string) (*models.TopologyStatus, error) {
	st, err := s.engine.Refresh(ctx, req)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, st)
	s.log.Debug("status refreshed",
		zap.String("namespace", req.Application.Namespace),
		zap.String("name", req.Application.Name),
		zap.String("refreshId", st.RefreshID),
		zap.Int("nodes", len(st.Nodes)))
	return st, nil
}

func (s *appStatusService) hubFor(req *models.TopologyRequest) string {
	if req.HubCluster != "" {
		return req.HubCluster
	}
	return s.hub
}

func (s *appStatusService) cacheKey(req *models.TopologyRequest) (string, error) {
	fp, err := Fingerprint(req)
	if err != nil {
		return "", err
	}
	return statuscache.Key(s.hubFor(req), req.Application.Namespace, req.Application.Name, fp), nil
}

// Fingerprint hashes the topology of req. Two requests with the same nodes
// and edges share cached results.
func Fingerprint(req *models.TopologyRequest) (string, error) {
	data, err := json.Marshal(struct {
		Nodes []models.TopologyNode `json:"nodes"`
		Edges []models.TopologyEdge `json:"edges"`
	}{req.Nodes, req.Edges})
	if err != nil {
		return "", fmt.Errorf("fingerprint topology: %w", err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}
