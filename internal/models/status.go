package models

import "time"

// StatusResult is the computed health of one node for one refresh.
type StatusResult struct {
	NodeID         string   `json:"nodeId"`
	Pulse          Pulse    `json:"pulse"`
	ShapeType      string   `json:"shapeType"`
	OnlineClusters []string `json:"onlineClusters,omitempty"`
	// Reason is a short machine-readable hint for the chosen pulse.
	Reason string `json:"reason,omitempty"`
}

// ResourceInstance is one resource-model entry: every record observed for a
// logical resource on one cluster (and namespace).
type ResourceInstance struct {
	Key       string              `json:"key"`
	Name      string              `json:"name"`
	Cluster   string              `json:"cluster"`
	Namespace string              `json:"namespace,omitempty"`
	Records   []RawResourceRecord `json:"records"`
}

// Detail is one label/value row for the details panel.
type Detail struct {
	Label  string `json:"label"`
	Value  string `json:"value,omitempty"`
	Status string `json:"status,omitempty"`
	Indent bool   `json:"indent,omitempty"`
}

// RenderedNode combines a topology node with its computed status.
type RenderedNode struct {
	Node           TopologyNode       `json:"node"`
	Status         StatusResult       `json:"status"`
	Resources      []ResourceInstance `json:"resources,omitempty"`
	SearchClusters []string           `json:"searchClusters,omitempty"`
	ReplicaCount   *int64             `json:"replicaCount,omitempty"`
	ResourceCount  *int               `json:"resourceCount,omitempty"`
	Details        []Detail           `json:"details,omitempty"`
}

// AppRef names the application being rendered.
type AppRef struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// TopologyRequest is what a caller supplies for one refresh.
type TopologyRequest struct {
	Application AppRef         `json:"application"`
	HubCluster  string         `json:"hubCluster,omitempty"`
	Nodes       []TopologyNode `json:"nodes"`
	Edges       []TopologyEdge `json:"edges,omitempty"`
}

// AppSummary is attached to the application node.
type AppSummary struct {
	IsLocal     bool `json:"isLocal"`
	RemoteCount int  `json:"remoteCount"`
}

// TopologyStatus is the result of one refresh, ready for rendering.
type TopologyStatus struct {
	RefreshID      string         `json:"refreshId"`
	Application    AppRef         `json:"application"`
	Nodes          []RenderedNode `json:"nodes"`
	Edges          []TopologyEdge `json:"edges,omitempty"`
	SearchClusters []string       `json:"searchClusters,omitempty"`
	AppSummary     AppSummary     `json:"appSummary"`
	Channel        string         `json:"channel,omitempty"`
	LayoutSeed     string         `json:"layoutSeed,omitempty"`
	GeneratedAt    time.Time      `json:"generatedAt"`
	Pending        bool           `json:"pending,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
}
