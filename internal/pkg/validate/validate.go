// Package validate provides input validation for API request bodies.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
)

// MaxNodes bounds the topology size accepted per request.
const MaxNodes = 5000

// ClusterNameMaxLen matches the ManagedCluster name limit.
const ClusterNameMaxLen = 63

// ErrInvalidRequest wraps every validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// Namespace validates namespace: empty or a DNS label.
func Namespace(ns string) bool {
	return ns == "" || len(validation.IsDNS1123Label(ns)) == 0
}

// Name validates resource name: valid DNS subdomain.
func Name(name string) bool {
	return name != "" && len(validation.IsDNS1123Subdomain(name)) == 0
}

// ClusterName validates a managed cluster name.
func ClusterName(name string) bool {
	return name != "" && len(name) <= ClusterNameMaxLen && len(validation.IsDNS1123Label(name)) == 0
}

// TopologyRequest checks a refresh request before it reaches the engine.
func TopologyRequest(req *models.TopologyRequest) error {
	if req == nil {
		return fmt.Errorf("%w: empty body", ErrInvalidRequest)
	}
	var problems []string
	if !Name(req.Application.Name) {
		problems = append(problems, fmt.Sprintf("application name %q", req.Application.Name))
	}
	if req.Application.Namespace == "" || !Namespace(req.Application.Namespace) {
		problems = append(problems, fmt.Sprintf("application namespace %q", req.Application.Namespace))
	}
	if req.HubCluster != "" && !ClusterName(req.HubCluster) {
		problems = append(problems, fmt.Sprintf("hub cluster %q", req.HubCluster))
	}
	switch {
	case len(req.Nodes) == 0:
		problems = append(problems, "no nodes")
	case len(req.Nodes) > MaxNodes:
		problems = append(problems, fmt.Sprintf("%d nodes exceeds limit %d", len(req.Nodes), MaxNodes))
	}
	seen := make(map[string]bool, len(req.Nodes))
	for i, n := range req.Nodes {
		if n.ID == "" {
			problems = append(problems, fmt.Sprintf("node %d has no id", i))
			continue
		}
		if seen[n.ID] {
			problems = append(problems, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = true
		if n.Type == "" {
			problems = append(problems, fmt.Sprintf("node %q has no type", n.ID))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}
