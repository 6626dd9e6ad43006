package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/types"
)

// NodeType is the logical kind of a topology node. Workload nodes use the
// lowercase Kubernetes kind ("deployment", "route", ...).
type NodeType string

const (
	NodeApplication     NodeType = "application"
	NodeApplicationSet  NodeType = "applicationset"
	NodeFluxApplication NodeType = "fluxapplication"
	NodeOCPApplication  NodeType = "ocpapplication"
	NodeSubscription    NodeType = "subscription"
	NodePlacements      NodeType = "placements"
	NodePlacement       NodeType = "placement"
	NodeCluster         NodeType = "cluster"
	NodePod             NodeType = "pod"
	NodeAnsibleJob      NodeType = "ansiblejob"
	NodePackage         NodeType = "package"
	NodeNamespace       NodeType = "namespace"

	NodeDeployment         NodeType = "deployment"
	NodeDeploymentConfig   NodeType = "deploymentconfig"
	NodeReplicaSet         NodeType = "replicaset"
	NodeReplicationCtrl    NodeType = "replicationcontroller"
	NodeStatefulSet        NodeType = "statefulset"
	NodeDaemonSet          NodeType = "daemonset"
	NodeControllerRevision NodeType = "controllerrevision"
	NodeRoute              NodeType = "route"
	NodeHelmRelease        NodeType = "helmrelease"
	NodeDeployable         NodeType = "deployable"
)

// legacy hierarchical id markers
const (
	legacyDeployableMarker = "--deployable--"
	legacyClustersMarker   = "member--clusters--"
)

// NodeRef is one hop of a node's owner chain.
type NodeRef struct {
	ID           string   `json:"id,omitempty"`
	Type         NodeType `json:"type"`
	Name         string   `json:"name"`
	Namespace    string   `json:"namespace,omitempty"`
	ClusterNames []string `json:"clusterNames,omitempty"`
}

// TopologyNode is a logical vertex of the application graph. It is built once
// per refresh by the caller and never mutated by the engine.
type TopologyNode struct {
	ID        string   `json:"id"`
	Type      NodeType `json:"type"`
	Name      string   `json:"name"`
	Namespace string   `json:"namespace,omitempty"`
	// OwnerChain runs from the application down to the direct parent.
	OwnerChain   []NodeRef     `json:"ownerChain,omitempty"`
	ClusterNames []string      `json:"clusterNames,omitempty"`
	IsDesign     bool          `json:"isDesign,omitempty"`
	IsDeployable bool          `json:"isDeployable,omitempty"`
	Clusters     []ClusterInfo `json:"clusters,omitempty"`
	Specs        NodeSpecs     `json:"-"`
}

// NodeSpecs holds the type-specific part of a node. Implementations:
// *ApplicationSpecs, *SubscriptionSpecs, *PlacementSpecs, *ClusterSpecs,
// *AnsibleJobSpecs, *WorkloadSpecs.
type NodeSpecs interface {
	specs()
}

// ArgoCondition is an Argo CD application condition.
type ArgoCondition struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// ArgoApplication is the slice of an Argo CD Application the engine reads.
type ArgoApplication struct {
	Name                 string          `json:"name"`
	Namespace            string          `json:"namespace,omitempty"`
	Cluster              string          `json:"cluster,omitempty"`
	HealthStatus         string          `json:"healthStatus,omitempty"`
	SyncStatus           string          `json:"syncStatus,omitempty"`
	DestinationName      string          `json:"destinationName,omitempty"`
	DestinationNamespace string          `json:"destinationNamespace,omitempty"`
	Conditions           []ArgoCondition `json:"conditions,omitempty"`
}

// ApplicationSpecs covers application, applicationset, fluxapplication and ocpapplication nodes.
type ApplicationSpecs struct {
	IsArgo      bool              `json:"isArgo,omitempty"`
	Channels    []string          `json:"channels,omitempty"`
	Self        *ArgoApplication  `json:"self,omitempty"`
	RelatedApps []ArgoApplication `json:"relatedApps,omitempty"`
	AppSetApps  []ArgoApplication `json:"appSetApps,omitempty"`
	// PullModelTargetLocalCluster flags an Argo pull-model app aimed at the hub.
	PullModelTargetLocalCluster bool `json:"isArgoCDPullModelTargetLocalCluster,omitempty"`
}

// HourRange is a time-of-day range such as "8:00AM"-"5:30PM".
type HourRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// TimeWindow mirrors a subscription's spec.timewindow.
type TimeWindow struct {
	WindowType string      `json:"windowtype"` // active | blocked
	Location   string      `json:"location,omitempty"`
	Daysofweek []string    `json:"daysofweek,omitempty"`
	Hours      []HourRange `json:"hours,omitempty"`
}

// ReportResult is one per-cluster row of a subscription report.
type ReportResult struct {
	Source string `json:"source"`
	Policy string `json:"policy,omitempty"`
	Result string `json:"result"`
}

// PackageStatus is the phase of one deployed package on one cluster.
type PackageStatus struct {
	Phase   string `json:"phase,omitempty"`
	Message string `json:"message,omitempty"`
}

// ClusterPackages groups package statuses reported for one cluster.
type ClusterPackages struct {
	Packages map[string]PackageStatus `json:"packages,omitempty"`
}

// SubscriptionSpecs covers subscription nodes.
type SubscriptionSpecs struct {
	IsBlocked  bool        `json:"isBlocked,omitempty"`
	TimeWindow *TimeWindow `json:"timeWindow,omitempty"`
	Channel    string      `json:"channel,omitempty"`
	// ReportResults comes from the SubscriptionReport.
	ReportResults []ReportResult `json:"reportResults,omitempty"`
	// Statuses is status.statuses keyed by cluster.
	Statuses  map[string]ClusterPackages `json:"statuses,omitempty"`
	PreHooks  []types.NamespacedName     `json:"preHooks,omitempty"`
	PostHooks []types.NamespacedName     `json:"postHooks,omitempty"`
}

// PlacementDecision is one selected cluster.
type PlacementDecision struct {
	ClusterName      string `json:"clusterName"`
	ClusterNamespace string `json:"clusterNamespace,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// PlacementSpecs covers placements (PlacementRule) and placement nodes.
type PlacementSpecs struct {
	Decisions                []PlacementDecision `json:"decisions,omitempty"`
	NumberOfSelectedClusters *int                `json:"numberOfSelectedClusters,omitempty"`
}

// ClusterSpecs covers cluster nodes.
type ClusterSpecs struct {
	AppClusters      []string            `json:"appClusters,omitempty"`
	TargetNamespaces map[string][]string `json:"targetNamespaces,omitempty"`
}

// AnsibleJobSpecs covers pre/post hook nodes.
type AnsibleJobSpecs struct {
	HookType string      `json:"hookType,omitempty"` // pre | post
	JobName  string      `json:"jobName"`
	JobNS    string      `json:"jobNamespace,omitempty"`
	Job      *AnsibleJob `json:"job,omitempty"`
}

// JobRef returns the lookup key for the hook's AnsibleJob.
func (s *AnsibleJobSpecs) JobRef(nodeNamespace string) types.NamespacedName {
	ns := s.JobNS
	if ns == "" {
		ns = nodeNamespace
	}
	return types.NamespacedName{Namespace: ns, Name: s.JobName}
}

// ResourceRef identifies one pre-enumerated resource instance of a grouped node.
type ResourceRef struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// ParentRef points a derived node (pod, controllerrevision) at its owner node.
type ParentRef struct {
	Type NodeType `json:"type"`
	Name string   `json:"name"`
}

// WorkloadSpecs covers generic workload nodes (deployments, pods, routes, ...).
type WorkloadSpecs struct {
	Resources     []ResourceRef `json:"resources,omitempty"`
	ResourceCount *int          `json:"resourceCount,omitempty"`
	Parent        *ParentRef    `json:"parent,omitempty"`
	IngressRules  int           `json:"ingressRules,omitempty"`
	ClusterScoped bool          `json:"clusterScoped,omitempty"`
	// TargetNamespaces lists the namespaces each cluster is expected to host (Argo destinations).
	TargetNamespaces map[string][]string `json:"targetNamespaces,omitempty"`
}

func (*ApplicationSpecs) specs()  {}
func (*SubscriptionSpecs) specs() {}
func (*PlacementSpecs) specs()    {}
func (*ClusterSpecs) specs()      {}
func (*AnsibleJobSpecs) specs()   {}
func (*WorkloadSpecs) specs()     {}

// IsWorkload reports whether t is not one of the structural application node types.
func (t NodeType) IsWorkload() bool {
	switch t {
	case NodeApplication, NodeApplicationSet, NodeFluxApplication, NodeOCPApplication,
		NodeSubscription, NodePlacements, NodePlacement, NodeCluster, NodeAnsibleJob:
		return false
	}
	return true
}

// newSpecsFor returns an empty specs value for the node type.
func newSpecsFor(t NodeType) NodeSpecs {
	switch t {
	case NodeApplication, NodeApplicationSet, NodeFluxApplication, NodeOCPApplication:
		return &ApplicationSpecs{}
	case NodeSubscription:
		return &SubscriptionSpecs{}
	case NodePlacements, NodePlacement:
		return &PlacementSpecs{}
	case NodeCluster:
		return &ClusterSpecs{}
	case NodeAnsibleJob:
		return &AnsibleJobSpecs{}
	default:
		return &WorkloadSpecs{}
	}
}

type topologyNodeJSON struct {
	ID           string          `json:"id"`
	Type         NodeType        `json:"type"`
	Name         string          `json:"name"`
	Namespace    string          `json:"namespace,omitempty"`
	OwnerChain   []NodeRef       `json:"ownerChain,omitempty"`
	ClusterNames []string        `json:"clusterNames,omitempty"`
	IsDesign     bool            `json:"isDesign,omitempty"`
	IsDeployable bool            `json:"isDeployable,omitempty"`
	Clusters     []ClusterInfo   `json:"clusters,omitempty"`
	Specs        json.RawMessage `json:"specs,omitempty"`
}

func (n TopologyNode) MarshalJSON() ([]byte, error) {
	out := topologyNodeJSON{
		ID:           n.ID,
		Type:         n.Type,
		Name:         n.Name,
		Namespace:    n.Namespace,
		OwnerChain:   n.OwnerChain,
		ClusterNames: n.ClusterNames,
		IsDesign:     n.IsDesign,
		IsDeployable: n.IsDeployable,
		Clusters:     n.Clusters,
	}
	if n.Specs != nil {
		raw, err := json.Marshal(n.Specs)
		if err != nil {
			return nil, fmt.Errorf("marshal specs of node %s: %w", n.ID, err)
		}
		out.Specs = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes specs into the variant selected by type. Node ids in the
// older hierarchical form ("...--deployable--...") also set IsDeployable.
func (n *TopologyNode) UnmarshalJSON(data []byte) error {
	var in topologyNodeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	in.Type = NodeType(strings.ToLower(string(in.Type)))
	specs := newSpecsFor(in.Type)
	if len(in.Specs) > 0 && string(in.Specs) != "null" {
		if err := json.Unmarshal(in.Specs, specs); err != nil {
			return fmt.Errorf("decode specs of node %s (%s): %w", in.ID, in.Type, err)
		}
	}
	*n = TopologyNode{
		ID:           in.ID,
		Type:         in.Type,
		Name:         in.Name,
		Namespace:    in.Namespace,
		OwnerChain:   in.OwnerChain,
		ClusterNames: in.ClusterNames,
		IsDesign:     in.IsDesign,
		IsDeployable: in.IsDeployable || strings.Contains(in.ID, legacyDeployableMarker),
		Clusters:     in.Clusters,
		Specs:        specs,
	}
	return nil
}

// LegacyClusterNames parses the cluster list out of an older hierarchical id
// ("member--clusters--a,b--..."). Returns nil when the id has no cluster segment.
func LegacyClusterNames(id string) []string {
	idx := strings.Index(id, legacyClustersMarker)
	if idx < 0 {
		return nil
	}
	rest := id[idx+len(legacyClustersMarker):]
	if end := strings.Index(rest, "--"); end >= 0 {
		rest = rest[:end]
	}
	var names []string
	for _, name := range strings.Split(rest, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Application returns the node's ApplicationSpecs, or nil.
func (n *TopologyNode) Application() *ApplicationSpecs {
	s, _ := n.Specs.(*ApplicationSpecs)
	return s
}

// Subscription returns the node's SubscriptionSpecs, or nil.
func (n *TopologyNode) Subscription() *SubscriptionSpecs {
	s, _ := n.Specs.(*SubscriptionSpecs)
	return s
}

// Placement returns the node's PlacementSpecs, or nil.
func (n *TopologyNode) Placement() *PlacementSpecs {
	s, _ := n.Specs.(*PlacementSpecs)
	return s
}

// Workload returns the node's WorkloadSpecs, or nil.
func (n *TopologyNode) Workload() *WorkloadSpecs {
	s, _ := n.Specs.(*WorkloadSpecs)
	return s
}

// TopologyEdge is a relationship between two nodes, passed through untouched.
type TopologyEdge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type,omitempty"`
	Label  string `json:"label,omitempty"`
}
