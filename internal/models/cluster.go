package models

import "strings"

// Cluster status values reported by search or derived from ManagedCluster conditions.
const (
	ClusterStatusOK            = "ok"
	ClusterStatusReady         = "ready"
	ClusterStatusOffline       = "offline"
	ClusterStatusUnknown       = "unknown"
	ClusterStatusPendingImport = "pendingimport"
	ClusterStatusNotAccepted   = "notaccepted"
)

// ClusterMeta carries the object name when cluster info comes from a ManagedCluster object.
type ClusterMeta struct {
	Name string `json:"name,omitempty"`
}

// ClusterInfo describes a managed cluster as seen by search or by a placement.
// It is never authoritative on its own; reachability is derived by the resolver.
type ClusterInfo struct {
	Name     string      `json:"name,omitempty"`
	Metadata ClusterMeta `json:"metadata,omitempty"`
	Status   string      `json:"status,omitempty"`

	ManagedClusterConditionAvailable string `json:"ManagedClusterConditionAvailable,omitempty"`
	HubAcceptedManagedCluster        string `json:"HubAcceptedManagedCluster,omitempty"`
	ManagedClusterJoined             string `json:"ManagedClusterJoined,omitempty"`
}

// ClusterName returns name, falling back to metadata.name.
func (c ClusterInfo) ClusterName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Metadata.Name
}

// ClusterInfoFromRecord converts a kind=cluster search record.
func ClusterInfoFromRecord(r RawResourceRecord) ClusterInfo {
	name := r.Name
	if name == "" {
		name = r.Cluster
	}
	return ClusterInfo{
		Name:                             name,
		Status:                           strings.TrimSpace(r.Status),
		ManagedClusterConditionAvailable: r.ManagedClusterConditionAvailable,
		HubAcceptedManagedCluster:        r.HubAcceptedManagedCluster,
		ManagedClusterJoined:             r.ManagedClusterJoined,
	}
}
