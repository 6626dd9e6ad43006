// Package correlate builds the per-node resource model from the flat related
// records returned by search. It runs in three explicit phases: owners, pods,
// then derived counts copied from parents onto pods and controller revisions.
package correlate

import (
	"sort"
	"strings"

	"github.com/kubilitics/kubilitics-appstatus/internal/clusters"
	"github.com/kubilitics/kubilitics-appstatus/internal/models"
	"github.com/kubilitics/kubilitics-appstatus/internal/normalize"
)

// Kinds that are never matched against nodes.
const (
	kindDeployable = "deployable"
	kindCluster    = "cluster"
	kindPod        = "pod"
	kindReplicaSet = "replicaset"
	localSuffix    = "-local"
)

// Options tune one correlation run.
type Options struct {
	Hub string
	// HasHelmReleases forces chart release naming. It is also enabled when the
	// topology or the related records contain helm releases.
	HasHelmReleases bool
}

// Result is the output of a correlation run.
type Result struct {
	// Models is keyed by node id. Every node has an entry, possibly empty.
	Models map[string]*NodeModel
	// SearchClusters are the cluster records relevant to the application.
	SearchClusters []models.ClusterInfo
	// SearchClusterNames is SearchClusters' names, sorted.
	SearchClusterNames []string
	AppSummary         models.AppSummary
	// Dropped counts records that matched no node.
	Dropped int
}

type phase int

const (
	phaseNew phase = iota
	phaseOwners
	phasePods
	phaseDerived
)

// Correlator holds the state of one correlation run. It is not safe for
// concurrent use; each refresh allocates its own.
type Correlator struct {
	nodes  []models.TopologyNode
	groups []models.RelatedGroup
	byType map[models.NodeType][]int
	opts   Options
	phase  phase
	res    *Result
}

// New prepares a correlation run and resolves the application's clusters.
func New(nodes []models.TopologyNode, groups []models.RelatedGroup, opts Options) *Correlator {
	if opts.Hub == "" {
		opts.Hub = clusters.DefaultHubCluster
	}
	c := &Correlator{
		nodes:  nodes,
		groups: groups,
		byType: make(map[models.NodeType][]int),
		opts:   opts,
		res:    &Result{Models: make(map[string]*NodeModel, len(nodes))},
	}
	for i := range nodes {
		c.byType[nodes[i].Type] = append(c.byType[nodes[i].Type], i)
		c.res.Models[nodes[i].ID] = newNodeModel()
		if nodes[i].Type == models.NodeHelmRelease {
			c.opts.HasHelmReleases = true
		}
	}
	for _, g := range groups {
		if strings.EqualFold(g.Kind, string(models.NodeHelmRelease)) && len(g.Items) > 0 {
			c.opts.HasHelmReleases = true
		}
	}
	c.collectClusters()
	return c
}

// Correlate runs all phases.
func Correlate(nodes []models.TopologyNode, groups []models.RelatedGroup, opts Options) *Result {
	c := New(nodes, groups, opts)
	c.CorrelateOwners()
	c.CorrelatePods()
	c.SyncDerivedCounts()
	return c.Result()
}

// Result returns the run's output.
func (c *Correlator) Result() *Result {
	return c.res
}

func (c *Correlator) collectClusters() {
	var infos []models.ClusterInfo
	for _, g := range c.groups {
		if !strings.EqualFold(g.Kind, kindCluster) {
			continue
		}
		for _, r := range g.Items {
			info := models.ClusterInfoFromRecord(r)
			if info.Status == "" {
				info.Status = clusters.ArgoClusterStatus(info)
			}
			infos = append(infos, info)
		}
	}
	names := clusters.FilterAppClusters(c.nodes, clusters.Names(infos), c.opts.Hub)
	sort.Strings(names)
	c.res.SearchClusterNames = names

	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	added := make(map[string]bool, len(names))
	for _, info := range infos {
		name := info.ClusterName()
		if keep[name] && !added[name] {
			added[name] = true
			c.res.SearchClusters = append(c.res.SearchClusters, info)
		}
	}

	resolved := names
	if len(resolved) == 0 {
		resolved = c.topologyClusters()
	}
	for _, n := range resolved {
		if n == c.opts.Hub {
			c.res.AppSummary.IsLocal = true
		} else {
			c.res.AppSummary.RemoteCount++
		}
	}
}

// topologyClusters is the distinct cluster names placed by the topology itself.
func (c *Correlator) topologyClusters() []string {
	seen := make(map[string]bool)
	var out []string
	for i := range c.nodes {
		for _, n := range clusters.BaseClusterNames(&c.nodes[i]) {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sort.Strings(out)
	return out
}

// CorrelateOwners matches every related kind except pods.
func (c *Correlator) CorrelateOwners() {
	if c.phase >= phaseOwners {
		return
	}
	for _, g := range c.groups {
		kind := strings.ToLower(g.Kind)
		if kind == kindDeployable || kind == kindCluster || kind == kindPod {
			continue
		}
		c.correlateGroup(kind, g.Items)
	}
	c.phase = phaseOwners
}

// CorrelatePods matches pod records. Owners are correlated first if needed.
func (c *Correlator) CorrelatePods() {
	if c.phase >= phasePods {
		return
	}
	c.CorrelateOwners()
	for _, g := range c.groups {
		if strings.EqualFold(g.Kind, kindPod) {
			c.correlateGroup(kindPod, g.Items)
		}
	}
	c.phase = phasePods
}

// SyncDerivedCounts copies parent counts onto controller revisions and pods.
func (c *Correlator) SyncDerivedCounts() {
	if c.phase >= phaseDerived {
		return
	}
	c.CorrelatePods()
	c.syncControllerRevisionCounts()
	c.syncReplicaSetCounts()
	c.phase = phaseDerived
}

func (c *Correlator) correlateGroup(kind string, items []models.RawResourceRecord) {
	for _, r := range items {
		if kind == kindReplicaSet && r.Desired.Valid && r.Desired.Value == 0 {
			continue
		}
		matched := false
		for _, idx := range c.byType[models.NodeType(kind)] {
			node := &c.nodes[idx]
			key, ok := c.match(node, r)
			if !ok {
				continue
			}
			c.res.Models[node.ID].add(key, r)
			matched = true
		}
		if !matched {
			c.res.Dropped++
		}
	}
}

func (c *Correlator) match(node *models.TopologyNode, r models.RawResourceRecord) (CompositeKey, bool) {
	if !c.inClusters(node, r) {
		return CompositeKey{}, false
	}
	key := CompositeKey{Name: node.Name, Cluster: r.Cluster, Namespace: r.Namespace}
	ws := node.Workload()
	if ws != nil && len(ws.Resources) > 0 {
		for _, ref := range ws.Resources {
			if ref.Name == r.Name && (ref.Namespace == "" || ref.Namespace == r.Namespace) {
				key.Name = r.Name
				return key, true
			}
		}
		return CompositeKey{}, false
	}
	clusterScoped := ws != nil && ws.ClusterScoped
	if !clusterScoped && node.Namespace != "" && r.Namespace != node.Namespace {
		return CompositeKey{}, false
	}
	if node.Type == models.NodeSubscription {
		if r.Name == node.Name {
			return key, true
		}
		if c.isLocalPlacement(r) && strings.TrimSuffix(r.Name, localSuffix) == node.Name {
			return key, true
		}
		return CompositeKey{}, false
	}
	ctx := normalize.Context{HasHelmReleases: c.opts.HasHelmReleases}
	if ws != nil {
		ctx.IngressRules = ws.IngressRules
	}
	for _, name := range normalize.Candidates(r, ctx) {
		if name == node.Name {
			return key, true
		}
	}
	return CompositeKey{}, false
}

func (c *Correlator) isLocalPlacement(r models.RawResourceRecord) bool {
	return r.LocalPlacement && (r.HubClusterResource || r.Cluster == c.opts.Hub)
}

func (c *Correlator) inClusters(node *models.TopologyNode, r models.RawResourceRecord) bool {
	if node.Type == models.NodeSubscription && (r.HubClusterResource || r.Cluster == c.opts.Hub) {
		return true
	}
	names := clusters.BaseClusterNames(node)
	if len(names) == 0 {
		names = c.res.SearchClusterNames
	}
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if n == r.Cluster {
			return true
		}
	}
	return false
}

// parentOf returns the node a derived node takes its counts from.
func (c *Correlator) parentOf(node *models.TopologyNode, fallbacks ...models.NodeType) *models.TopologyNode {
	name := node.Name
	types := fallbacks
	if ws := node.Workload(); ws != nil && ws.Parent != nil {
		name = ws.Parent.Name
		types = []models.NodeType{ws.Parent.Type}
	}
	for _, t := range types {
		for _, idx := range c.byType[t] {
			if c.nodes[idx].Name == name {
				return &c.nodes[idx]
			}
		}
	}
	return nil
}

// parentIndex maps "<type>-<name>-<cluster>" and the cluster agnostic
// "<type>-<name>-" to the parent's records.
func parentIndex(parent *models.TopologyNode, m *NodeModel) map[string][]models.RawResourceRecord {
	idx := make(map[string][]models.RawResourceRecord)
	prefix := string(parent.Type) + "-" + parent.Name + "-"
	for _, k := range m.Keys() {
		idx[prefix+k.Cluster] = append(idx[prefix+k.Cluster], m.Resources[k]...)
		idx[prefix] = append(idx[prefix], m.Resources[k]...)
	}
	return idx
}

func (c *Correlator) syncControllerRevisionCounts() {
	for _, i := range c.byType[models.NodeControllerRevision] {
		node := &c.nodes[i]
		parent := c.parentOf(node, models.NodeDaemonSet, models.NodeStatefulSet)
		if parent == nil {
			continue
		}
		pm := c.res.Models[parent.ID]
		if pm.Empty() {
			continue
		}
		index := parentIndex(parent, pm)
		prefix := string(parent.Type) + "-" + parent.Name + "-"
		m := c.res.Models[node.ID]

		targets := m.Keys()
		if len(targets) == 0 {
			for _, k := range pm.Keys() {
				targets = append(targets, CompositeKey{Name: node.Name, Cluster: k.Cluster, Namespace: k.Namespace})
			}
		}
		synced := make(map[CompositeKey][]models.RawResourceRecord, len(targets))
		for _, k := range targets {
			recs, ok := index[prefix+k.Cluster]
			if !ok {
				recs = index[prefix]
			}
			instance := node.Name
			if own := m.Resources[k]; len(own) > 0 {
				instance = own[0].Name
			}
			copies := make([]models.RawResourceRecord, 0, len(recs))
			for _, r := range recs {
				r.Name = instance
				copies = append(copies, r)
			}
			synced[k] = copies
		}
		m.Resources = synced
	}
}

func (c *Correlator) syncReplicaSetCounts() {
	for _, i := range c.byType[models.NodePod] {
		node := &c.nodes[i]
		parent := c.parentOf(node, models.NodeReplicaSet, models.NodeDeployment,
			models.NodeDeploymentConfig, models.NodeStatefulSet, models.NodeDaemonSet)
		if parent == nil {
			continue
		}
		desired, ok := desiredCount(c.res.Models[parent.ID])
		if !ok {
			continue
		}
		clusterCount := len(clusters.BaseClusterNames(node))
		if clusterCount == 0 {
			clusterCount = len(c.res.SearchClusterNames)
		}
		if clusterCount == 0 {
			clusterCount = 1
		}
		total := int(desired) * clusterCount
		m := c.res.Models[node.ID]
		m.ReplicaCount = &desired
		m.ResourceCount = &total
	}
}

func desiredCount(m *NodeModel) (int64, bool) {
	for _, r := range m.Records() {
		if r.Desired.Valid {
			return r.Desired.Value, true
		}
	}
	return 0, false
}
