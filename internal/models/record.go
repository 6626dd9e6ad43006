package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Count is a numeric field from the search index. The index emits these as
// numbers or as strings ("0", "3"); absent or unparseable values are not Valid.
type Count struct {
	Value int64
	Valid bool
}

// NewCount returns a valid Count.
func NewCount(v int64) Count {
	return Count{Value: v, Valid: true}
}

// Int returns the value, or 0 when the count is absent.
func (c Count) Int() int64 {
	if !c.Valid {
		return 0
	}
	return c.Value
}

func (c Count) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(c.Value, 10)), nil
}

func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*c = Count{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := string(data)
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return nil
		}
		s = strings.TrimSpace(str)
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*c = NewCount(v)
		return nil
	}
	// Some collectors emit floats for counts.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*c = NewCount(int64(f))
	}
	return nil
}

// RawResourceRecord is one observation of a Kubernetes object returned by the
// search backend. Records are immutable once decoded; several records can
// describe the same logical resource on different clusters.
type RawResourceRecord struct {
	Kind       string `json:"kind"`
	APIGroup   string `json:"apigroup,omitempty"`
	APIVersion string `json:"apiversion,omitempty"`
	Name       string `json:"name"`
	Namespace  string `json:"namespace,omitempty"`
	Cluster    string `json:"cluster,omitempty"`
	// Label is the index's semicolon-delimited "key=value" label string.
	Label  string `json:"label,omitempty"`
	Status string `json:"status,omitempty"`

	Desired     Count `json:"desired"`
	Available   Count `json:"available"`
	Ready       Count `json:"ready"`
	Current     Count `json:"current"`
	Unavailable Count `json:"unavailable"`
	Restarts    Count `json:"restarts"`

	Created   string `json:"created,omitempty"`
	StartedAt string `json:"startedAt,omitempty"`
	SelfLink  string `json:"_uid,omitempty"`

	HostingDeployable   string `json:"_hostingDeployable,omitempty"`
	HostingSubscription string `json:"_hostingSubscription,omitempty"`
	HubClusterResource  bool   `json:"_hubClusterResource,omitempty"`
	LocalPlacement      bool   `json:"localPlacement,omitempty"`
	TimeWindow          string `json:"timeWindow,omitempty"`

	// Argo CD application fields.
	HealthStatus string `json:"healthStatus,omitempty"`
	SyncStatus   string `json:"syncStatus,omitempty"`

	// ManagedCluster fields, present on kind=cluster records.
	ManagedClusterConditionAvailable string `json:"ManagedClusterConditionAvailable,omitempty"`
	HubAcceptedManagedCluster        string `json:"HubAcceptedManagedCluster,omitempty"`
	ManagedClusterJoined             string `json:"ManagedClusterJoined,omitempty"`

	labels map[string]string
}

func (r *RawResourceRecord) UnmarshalJSON(data []byte) error {
	type plain RawResourceRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = RawResourceRecord(p)
	r.labels = ParseLabels(r.Label)
	return nil
}

// Labels returns the decoded label map. Never nil.
func (r *RawResourceRecord) Labels() map[string]string {
	if r.labels == nil {
		r.labels = ParseLabels(r.Label)
	}
	return r.labels
}

// KindLower returns the lowercase kind, the form topology node types use.
func (r *RawResourceRecord) KindLower() string {
	return strings.ToLower(r.Kind)
}

// ParseLabels decodes "k1=v1; k2=v2". Malformed entries are skipped.
func ParseLabels(label string) map[string]string {
	out := make(map[string]string)
	if label == "" {
		return out
	}
	for _, part := range strings.Split(label, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}
