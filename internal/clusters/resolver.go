// Package clusters decides which clusters a topology node is deployed to and
// which of those are reachable.
package clusters

import (
	"sort"
	"strings"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
)

// DefaultHubCluster is the name ACM gives the hub's self-managed cluster.
const DefaultHubCluster = "local-cluster"

// Resolver resolves online clusters for nodes of one refresh.
type Resolver struct {
	Hub            string
	SearchClusters []models.ClusterInfo
}

// NewResolver returns a Resolver; an empty hub falls back to DefaultHubCluster.
func NewResolver(hub string, searchClusters []models.ClusterInfo) *Resolver {
	if hub == "" {
		hub = DefaultHubCluster
	}
	return &Resolver{Hub: hub, SearchClusters: searchClusters}
}

// BaseClusterNames returns the clusters a node is placed on: its own cluster
// list, else the nearest owner that has one, else the list encoded in an older
// hierarchical id.
func BaseClusterNames(node *models.TopologyNode) []string {
	if len(node.ClusterNames) > 0 {
		return node.ClusterNames
	}
	for i := len(node.OwnerChain) - 1; i >= 0; i-- {
		if names := node.OwnerChain[i].ClusterNames; len(names) > 0 {
			return names
		}
	}
	return models.LegacyClusterNames(node.ID)
}

// Online returns the node's reachable clusters. The hub is always included.
func (r *Resolver) Online(node *models.TopologyNode) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, name := range BaseClusterNames(node) {
		if r.Reachable(node, name) {
			add(name)
		}
	}
	add(r.Hub)
	return out
}

// Reachable reports whether name is the hub or a cluster known to be online.
// Clusters absent from the refresh's cluster records are not reachable.
func (r *Resolver) Reachable(node *models.TopologyNode, name string) bool {
	if name == r.Hub {
		return true
	}
	lookup := r.SearchClusters
	if len(node.Clusters) > len(lookup) {
		lookup = node.Clusters
	}
	c, ok := Find(lookup, name)
	return ok && IsOnline(c)
}

// IsOnline reports whether a cluster is reachable.
func IsOnline(c models.ClusterInfo) bool {
	switch c.Status {
	case models.ClusterStatusOK, models.ClusterStatusPendingImport, "OK":
		return true
	}
	return c.ManagedClusterConditionAvailable == "True"
}

// IsPending reports whether a cluster is waiting to be imported.
func IsPending(c models.ClusterInfo) bool {
	return strings.EqualFold(c.Status, models.ClusterStatusPendingImport)
}

// ArgoClusterStatus derives a status for a cluster record that carries only
// ManagedCluster conditions.
func ArgoClusterStatus(c models.ClusterInfo) string {
	switch {
	case c.HubAcceptedManagedCluster != "True":
		return models.ClusterStatusNotAccepted
	case c.ManagedClusterJoined != "True":
		return models.ClusterStatusPendingImport
	case c.ManagedClusterConditionAvailable == "True":
		return models.ClusterStatusOK
	default:
		return models.ClusterStatusOffline
	}
}

// FilterAppClusters drops the hub from clusterNames when the application's
// placement selected clusters but not the hub. Without a placement, or when the
// placement is a deployed instance, clusterNames is returned unchanged.
func FilterAppClusters(nodes []models.TopologyNode, clusterNames []string, hub string) []string {
	var placement *models.TopologyNode
	for i := range nodes {
		if nodes[i].Type == models.NodePlacements || nodes[i].Type == models.NodePlacement {
			placement = &nodes[i]
			break
		}
	}
	if placement == nil || placement.IsDeployable {
		return clusterNames
	}
	specs := placement.Placement()
	if specs == nil || len(specs.Decisions) == 0 {
		return clusterNames
	}
	for _, d := range specs.Decisions {
		if d.ClusterName == hub {
			return clusterNames
		}
	}
	out := make([]string, 0, len(clusterNames))
	for _, name := range clusterNames {
		if name != hub {
			out = append(out, name)
		}
	}
	return out
}

// Names returns the sorted distinct names of cs.
func Names(cs []models.ClusterInfo) []string {
	seen := make(map[string]bool, len(cs))
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		name := c.ClusterName()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Intersect keeps the members of names that are in allowed, preserving order.
func Intersect(names, allowed []string) []string {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	var out []string
	for _, n := range names {
		if set[n] {
			out = append(out, n)
		}
	}
	return out
}

// Find looks a cluster up by name or metadata.name.
func Find(cs []models.ClusterInfo, name string) (models.ClusterInfo, bool) {
	for _, c := range cs {
		if c.Name == name || c.Metadata.Name == name {
			return c, true
		}
	}
	return models.ClusterInfo{}, false
}
