package correlate

import (
	"sort"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
)

// CompositeKey identifies one logical resource instance inside a node's model.
type CompositeKey struct {
	Name      string
	Cluster   string
	Namespace string
}

// String renders the key as <name>-<cluster>[-<namespace>].
func (k CompositeKey) String() string {
	s := k.Name + "-" + k.Cluster
	if k.Namespace != "" {
		s += "-" + k.Namespace
	}
	return s
}

// NodeModel is the resource model built for one topology node.
type NodeModel struct {
	Resources map[CompositeKey][]models.RawResourceRecord
	// ReplicaCount is the parent's desired replica count (pods only).
	ReplicaCount *int64
	// ResourceCount is ReplicaCount multiplied by the number of clusters.
	ResourceCount *int
}

func newNodeModel() *NodeModel {
	return &NodeModel{Resources: make(map[CompositeKey][]models.RawResourceRecord)}
}

func (m *NodeModel) add(key CompositeKey, r models.RawResourceRecord) {
	m.Resources[key] = append(m.Resources[key], r)
}

// Empty reports whether no record was correlated to the node.
func (m *NodeModel) Empty() bool {
	return m == nil || len(m.Resources) == 0
}

// Keys returns the model keys sorted by their string form.
func (m *NodeModel) Keys() []CompositeKey {
	if m == nil {
		return nil
	}
	keys := make([]CompositeKey, 0, len(m.Resources))
	for k := range m.Resources {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Records returns every record in key order.
func (m *NodeModel) Records() []models.RawResourceRecord {
	var out []models.RawResourceRecord
	for _, k := range m.Keys() {
		out = append(out, m.Resources[k]...)
	}
	return out
}

// ByCluster returns the records observed on cluster.
func (m *NodeModel) ByCluster(cluster string) []models.RawResourceRecord {
	var out []models.RawResourceRecord
	for _, k := range m.Keys() {
		if k.Cluster == cluster {
			out = append(out, m.Resources[k]...)
		}
	}
	return out
}

// Instances converts the model for rendering.
func (m *NodeModel) Instances() []models.ResourceInstance {
	keys := m.Keys()
	out := make([]models.ResourceInstance, 0, len(keys))
	for _, k := range keys {
		out = append(out, models.ResourceInstance{
			Key:       k.String(),
			Name:      k.Name,
			Cluster:   k.Cluster,
			Namespace: k.Namespace,
			Records:   m.Resources[k],
		})
	}
	return out
}
