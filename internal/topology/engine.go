// Package topology runs one application status refresh: fetch the related
// records, correlate them onto the topology, then compute and render every
// node's pulse.
package topology

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/types"

	"github.com/kubilitics/kubilitics-appstatus/internal/ansible"
	"github.com/kubilitics/kubilitics-appstatus/internal/clusters"
	"github.com/kubilitics/kubilitics-appstatus/internal/correlate"
	"github.com/kubilitics/kubilitics-appstatus/internal/details"
	"github.com/kubilitics/kubilitics-appstatus/internal/models"
	"github.com/kubilitics/kubilitics-appstatus/internal/normalize"
	"github.com/kubilitics/kubilitics-appstatus/internal/pkg/metrics"
	"github.com/kubilitics/kubilitics-appstatus/internal/pkg/tracing"
	"github.com/kubilitics/kubilitics-appstatus/internal/pulse"
	"github.com/kubilitics/kubilitics-appstatus/internal/search"
)

// ErrStaleRefresh is returned by a refresh that a newer refresh of the same
// application and consumer overtook. Its result must not be shown.
var ErrStaleRefresh = errors.New("refresh superseded by a newer refresh")

type consumerKey struct{}

// WithConsumer marks refreshes made with ctx as belonging to one consumer, such
// as a single status stream. A refresh is only superseded by a newer refresh of
// the same application from the same consumer. Refreshes without a consumer
// are never stale.
func WithConsumer(ctx context.Context, consumer string) context.Context {
	return context.WithValue(ctx, consumerKey{}, consumer)
}

// ConsumerFrom returns the consumer set by WithConsumer, or "".
func ConsumerFrom(ctx context.Context) string {
	consumer, _ := ctx.Value(consumerKey{}).(string)
	return consumer
}

// Options configure an Engine.
type Options struct {
	Hub      string
	MaxItems int
	// Now is the clock used for subscription time windows.
	Now func() time.Time
}

// Engine builds application statuses. It is safe for concurrent use; each
// refresh allocates its own state.
type Engine struct {
	fetcher *search.Fetcher
	planner *search.Planner
	jobs    ansible.JobLookup
	hub     string
	now     func() time.Time
	log     *zap.Logger

	mu          sync.Mutex
	seq         uint64
	generations map[string]uint64
}

// NewEngine creates a topology engine. jobs may be nil, in which case hook
// nodes are computed without their AnsibleJob.
func NewEngine(searcher search.Searcher, jobs ansible.JobLookup, opts Options, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Hub == "" {
		opts.Hub = clusters.DefaultHubCluster
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		fetcher:     search.NewFetcher(searcher, log),
		planner:     search.NewPlanner(opts.MaxItems),
		jobs:        jobs,
		hub:         opts.Hub,
		now:         opts.Now,
		log:         log.Named("topology"),
		generations: make(map[string]uint64),
	}
}

func (e *Engine) hubFor(req *models.TopologyRequest) string {
	if req.HubCluster != "" {
		return req.HubCluster
	}
	return e.hub
}

func (e *Engine) appKey(req *models.TopologyRequest) string {
	return e.hubFor(req) + "/" + req.Application.Namespace + "/" + req.Application.Name
}

// begin starts a new generation for key and returns it. Generations are unique
// across keys so a forgotten key cannot revive an old refresh.
func (e *Engine) begin(key string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	e.generations[key] = e.seq
	return e.seq
}

// finish reports whether gen is still the newest refresh of key and forgets
// key when it is.
func (e *Engine) finish(key string, gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generations[key] != gen {
		return false
	}
	delete(e.generations, key)
	return true
}

// Pending returns the snapshot shown while a refresh is in flight: every
// node spins and nothing is correlated yet.
func (e *Engine) Pending(req *models.TopologyRequest) *models.TopologyStatus {
	g := NewGraph()
	for i := range req.Nodes {
		n := &req.Nodes[i]
		g.AddNode(models.RenderedNode{Node: *n, Status: pulse.SpinnerResult(n)})
	}
	for _, edge := range req.Edges {
		g.AddEdge(edge)
	}
	g.LayoutSeed = g.GenerateLayoutSeed()
	st := g.ToStatus(req.Application)
	st.Pending = true
	st.Channel = channelOf(req.Nodes)
	return st
}

// Refresh fetches the application's related records and computes every node.
// Failed search or AnsibleJob queries degrade to missing data; only
// cancellation and ErrStaleRefresh are returned.
func (e *Engine) Refresh(ctx context.Context, req *models.TopologyRequest) (*models.TopologyStatus, error) {
	start := time.Now()
	key := e.appKey(req)
	consumer := ConsumerFrom(ctx)
	var gen uint64
	if consumer != "" {
		gen = e.begin(consumer + "|" + key)
	}

	ctx, span := tracing.Start(ctx, "topology.refresh",
		attribute.String("app.namespace", req.Application.Namespace),
		attribute.String("app.name", req.Application.Name),
		attribute.Int("topology.nodes", len(req.Nodes)),
	)
	defer span.End()

	queries := e.planner.Plan(req.Application, req.Nodes)

	var (
		results  []models.SearchResult
		failures int
		jobs     map[types.NamespacedName]*models.AnsibleJob
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		results, failures, err = e.fetcher.FetchRelated(gctx, queries)
		return err
	})
	if refs := hookRefs(req.Nodes); e.jobs != nil && len(refs) > 0 {
		g.Go(func() error {
			found, err := e.jobs.Jobs(gctx, refs)
			if err != nil {
				e.log.Warn("ansiblejob lookup failed", zap.String("app", key), zap.Error(err))
			}
			jobs = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if consumer != "" {
			e.finish(consumer+"|"+key, gen)
		}
		tracing.Fail(span, err)
		return nil, fmt.Errorf("fetch related resources: %w", err)
	}

	st := e.Compute(req, results, jobs)
	if failures > 0 {
		st.Warnings = append(st.Warnings, fmt.Sprintf("%d of %d search queries failed", failures, len(queries)))
	}

	if consumer != "" && !e.finish(consumer+"|"+key, gen) {
		metrics.StaleRefreshDiscardedTotal.Inc()
		e.log.Debug("discarding stale refresh", zap.String("app", key), zap.Uint64("generation", gen))
		return nil, ErrStaleRefresh
	}
	metrics.StatusComputeDurationSeconds.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("topology.layout_seed", st.LayoutSeed))
	return st, nil
}

// Compute correlates already-fetched results onto the request's topology and
// renders every node. It performs no I/O.
func (e *Engine) Compute(req *models.TopologyRequest, results []models.SearchResult, jobs map[types.NamespacedName]*models.AnsibleJob) *models.TopologyStatus {
	hub := e.hubFor(req)
	nodes := withJobs(req.Nodes, jobs)

	groups := correlate.MergeSearchResults(results)
	res := correlate.Correlate(nodes, groups, correlate.Options{Hub: hub})
	if res.Dropped > 0 {
		metrics.CorrelationDroppedRecordsTotal.Add(float64(res.Dropped))
	}
	resolver := clusters.NewResolver(hub, res.SearchClusters)
	now := e.now()

	g := NewGraph()
	for i := range nodes {
		n := &nodes[i]
		m := res.Models[n.ID]
		status := pulse.Compute(n, pulse.Context{Resolver: resolver, Model: m, Now: now})
		metrics.NodePulseTotal.WithLabelValues(string(n.Type), string(status.Pulse)).Inc()

		rn := models.RenderedNode{
			Node:      *n,
			Status:    status,
			Resources: m.Instances(),
			Details:   details.Build(n, status, m),
		}
		if m != nil {
			rn.ReplicaCount = m.ReplicaCount
			rn.ResourceCount = m.ResourceCount
		}
		if n.Application() == nil {
			rn.SearchClusters = res.SearchClusterNames
		}
		g.AddNode(rn)
	}
	for _, edge := range req.Edges {
		g.AddEdge(edge)
	}
	if err := g.Validate(); err != nil {
		g.Warnings = append(g.Warnings, err.Error())
	}
	g.LayoutSeed = g.GenerateLayoutSeed()

	st := g.ToStatus(req.Application)
	st.SearchClusters = res.SearchClusterNames
	st.AppSummary = res.AppSummary
	st.Channel = channelOf(nodes)
	return st
}

// hookRefs lists the AnsibleJobs behind the topology's hook nodes.
func hookRefs(nodes []models.TopologyNode) []types.NamespacedName {
	var refs []types.NamespacedName
	seen := make(map[types.NamespacedName]bool)
	for i := range nodes {
		s, ok := nodes[i].Specs.(*models.AnsibleJobSpecs)
		if !ok || s.JobName == "" || s.Job != nil {
			continue
		}
		ref := s.JobRef(nodes[i].Namespace)
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

// withJobs returns nodes with found jobs attached to copies of their hook
// specs. The caller's nodes are left untouched.
func withJobs(nodes []models.TopologyNode, jobs map[types.NamespacedName]*models.AnsibleJob) []models.TopologyNode {
	out := make([]models.TopologyNode, len(nodes))
	copy(out, nodes)
	if len(jobs) == 0 {
		return out
	}
	for i := range out {
		s, ok := out[i].Specs.(*models.AnsibleJobSpecs)
		if !ok || s.Job != nil {
			continue
		}
		if job, found := jobs[s.JobRef(out[i].Namespace)]; found {
			cp := *s
			cp.Job = job
			out[i].Specs = &cp
		}
	}
	return out
}

// channelOf is the common base of the application's subscribed channels.
func channelOf(nodes []models.TopologyNode) string {
	for i := range nodes {
		if app := nodes[i].Application(); app != nil && nodes[i].Type == models.NodeApplication {
			return normalize.ChannelBase(app.Channels)
		}
	}
	return ""
}
