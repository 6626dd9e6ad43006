package topology

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
)

// Graph collects the rendered nodes and edges of one refresh.
type Graph struct {
	Nodes      []models.RenderedNode
	Edges      []models.TopologyEdge
	NodeMap    map[string]int // id -> index into Nodes
	EdgeMap    map[string]bool
	LayoutSeed string
	Warnings   []string
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:   []models.RenderedNode{},
		Edges:   []models.TopologyEdge{},
		NodeMap: make(map[string]int),
		EdgeMap: make(map[string]bool),
	}
}

// AddNode adds a rendered node. Later duplicates of an id are ignored.
func (g *Graph) AddNode(node models.RenderedNode) {
	if _, exists := g.NodeMap[node.Node.ID]; exists {
		return
	}
	g.Nodes = append(g.Nodes, node)
	g.NodeMap[node.Node.ID] = len(g.Nodes) - 1
}

// AddEdge adds an edge to the graph
func (g *Graph) AddEdge(edge models.TopologyEdge) {
	key := edgeKey(edge)
	if g.EdgeMap[key] {
		return
	}
	g.Edges = append(g.Edges, edge)
	g.EdgeMap[key] = true
}

// GetNode retrieves a node by ID
func (g *Graph) GetNode(id string) *models.RenderedNode {
	idx, ok := g.NodeMap[id]
	if !ok {
		return nil
	}
	return &g.Nodes[idx]
}

func edgeKey(e models.TopologyEdge) string {
	return fmt.Sprintf("%s->%s:%s", e.Source, e.Target, e.Type)
}

// GenerateLayoutSeed hashes the graph structure and node pulses. The seed is
// stable across refreshes that produce the same picture.
func (g *Graph) GenerateLayoutSeed() string {
	sortedNodes := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		sortedNodes[i] = fmt.Sprintf("%s:%s:%s:%s:%s", n.Node.Type, n.Node.Namespace, n.Node.Name, n.Node.ID, n.Status.Pulse)
	}
	sort.Strings(sortedNodes)

	sortedEdges := make([]string, len(g.Edges))
	for i, e := range g.Edges {
		sortedEdges[i] = edgeKey(e)
	}
	sort.Strings(sortedEdges)

	data := struct {
		Nodes []string
		Edges []string
	}{
		Nodes: sortedNodes,
		Edges: sortedEdges,
	}

	jsonData, _ := json.Marshal(data)
	hash := sha256.Sum256(jsonData)
	return fmt.Sprintf("%x", hash)
}

// Validate checks that every edge joins two known nodes.
func (g *Graph) Validate() error {
	for _, edge := range g.Edges {
		if g.GetNode(edge.Source) == nil {
			return fmt.Errorf("edge references non-existent source node: %s", edge.Source)
		}
		if g.GetNode(edge.Target) == nil {
			return fmt.Errorf("edge references non-existent target node: %s", edge.Target)
		}
	}
	if len(g.Nodes) != len(g.NodeMap) {
		return fmt.Errorf("duplicate node IDs detected")
	}
	return nil
}

// ToStatus converts the graph to the API model.
func (g *Graph) ToStatus(app models.AppRef) *models.TopologyStatus {
	return &models.TopologyStatus{
		RefreshID:   uuid.NewString(),
		Application: app,
		Nodes:       g.Nodes,
		Edges:       g.Edges,
		LayoutSeed:  g.LayoutSeed,
		GeneratedAt: time.Now().UTC(),
		Warnings:    g.Warnings,
	}
}
