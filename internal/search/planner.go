package search

import (
	"sort"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
)

// DefaultMaxItems caps the records one query may return.
const DefaultMaxItems = 1000

// Query is one planned search call.
type Query struct {
	// Name labels the query in logs and metrics ("related", "kind:<k>").
	Name  string
	Input models.SearchInput
	// ItemsKind is set for cluster-scoped queries whose items, not related
	// groups, carry the records. The fetcher files the items under this kind.
	ItemsKind string
}

// Planner turns an application topology into search queries.
type Planner struct {
	MaxItems int
}

// NewPlanner returns a planner with the given item limit (DefaultMaxItems when <= 0).
func NewPlanner(maxItems int) *Planner {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Planner{MaxItems: maxItems}
}

// Plan returns one namespaced query for the application and its related kinds,
// followed by one query per cluster-scoped kind in the topology. Kind order is
// deterministic.
func (p *Planner) Plan(app models.AppRef, nodes []models.TopologyNode) []Query {
	related := map[string]bool{string(models.NodeCluster): true}
	scoped := make(map[string]map[string]bool)
	root := rootType(nodes)
	for i := range nodes {
		n := &nodes[i]
		if n.Type == root && n.Name == app.Name {
			continue
		}
		if ws := n.Workload(); ws != nil && ws.ClusterScoped {
			if scoped[string(n.Type)] == nil {
				scoped[string(n.Type)] = make(map[string]bool)
			}
			scoped[string(n.Type)][n.Name] = true
			continue
		}
		if kind := relatedKind(n.Type); kind != "" {
			related[kind] = true
		}
	}

	main := Query{
		Name: "related",
		Input: models.SearchInput{
			Keywords: []string{},
			Filters: []models.SearchFilter{
				{Property: "kind", Values: []string{rootKind(nodes)}},
				{Property: "namespace", Values: []string{app.Namespace}},
				{Property: "name", Values: []string{app.Name}},
			},
			RelatedKinds: sortedKeys(related),
			Limit:        p.MaxItems,
		},
	}
	out := []Query{main}
	for _, kind := range sortedKeys(scoped) {
		out = append(out, Query{
			Name: "kind:" + kind,
			Input: models.SearchInput{
				Keywords: []string{},
				Filters: []models.SearchFilter{
					{Property: "kind", Values: []string{kind}},
					{Property: "name", Values: sortedKeys(scoped[kind])},
				},
				Limit: p.MaxItems,
			},
			ItemsKind: kind,
		})
	}
	return out
}

// rootType is the type of the application node, the first structural
// application-like node of the topology.
func rootType(nodes []models.TopologyNode) models.NodeType {
	for _, n := range nodes {
		switch n.Type {
		case models.NodeApplication, models.NodeApplicationSet, models.NodeFluxApplication, models.NodeOCPApplication:
			return n.Type
		}
	}
	return models.NodeApplication
}

func rootKind(nodes []models.TopologyNode) string {
	switch t := rootType(nodes); t {
	case models.NodeFluxApplication:
		// Flux apps are keyed on their kustomization or helm release.
		return "kustomization"
	case models.NodeOCPApplication:
		return string(models.NodeDeployment)
	default:
		return string(t)
	}
}

// relatedKind maps a node type onto the search kind that carries its records.
// Structural nodes with no backing object return "".
func relatedKind(t models.NodeType) string {
	switch t {
	case models.NodePlacements:
		return "placementrule"
	case models.NodeCluster, models.NodeAnsibleJob, models.NodePackage:
		return ""
	case models.NodeApplication, models.NodeFluxApplication, models.NodeOCPApplication:
		return ""
	}
	return string(t)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
