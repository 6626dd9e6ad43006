package pulse

import (
	"testing"
	"time"

	"github.com/kubilitics/kubilitics-appstatus/internal/clusters"
	"github.com/kubilitics/kubilitics-appstatus/internal/correlate"
	"github.com/kubilitics/kubilitics-appstatus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRank(t *testing.T) {
	assert.Less(t, Rank(models.PulseRed), Rank(models.PulseOrange))
	assert.Less(t, Rank(models.PulseOrange), Rank(models.PulseYellow))
	assert.Less(t, Rank(models.PulseYellow), Rank(models.PulseGreen))
	assert.Panics(t, func() { Rank("purple") })
	assert.Panics(t, func() { Rank(models.PulseSpinner) })
}

func TestWorst(t *testing.T) {
	assert.Equal(t, models.PulseRed, Worst(models.PulseGreen, models.PulseRed))
	assert.Equal(t, models.PulseOrange, Worst(models.PulseOrange, models.PulseYellow))
	assert.Equal(t, models.PulseGreen, Worst(models.PulseGreen, models.PulseGreen))
}

func TestDesiredAvailable(t *testing.T) {
	tests := []struct {
		available, desired, unavailable int64
		want                            models.Pulse
	}{
		{2, 3, 0, models.PulseYellow},
		{0, 3, 0, models.PulseRed},
		{3, 3, 0, models.PulseGreen},
		{2, 3, 1, models.PulseRed},
		{0, 0, 0, models.PulseGreen},
		{2, 0, 0, models.PulseYellow},
		{4, 3, 0, models.PulseGreen},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DesiredAvailable(tt.available, tt.desired, tt.unavailable),
			"f(%d, %d, %d)", tt.available, tt.desired, tt.unavailable)
	}
}

func TestStatusStringPulse(t *testing.T) {
	tests := map[string]models.Pulse{
		"Running":           models.PulseGreen,
		"Bound":             models.PulseGreen,
		"Error":             models.PulseRed,
		"CrashLoopBackOff":  models.PulseRed,
		"ImagePullBackOff":  models.PulseRed,
		"OOMKilled":         models.PulseRed,
		"Lost":              models.PulseRed,
		"Pending":           models.PulseYellow,
		"ContainerCreating": models.PulseYellow,
		"Terminating":       models.PulseYellow,
		"Not Deployed":      models.PulseYellow,
		"Completed":         models.PulseGreen,
		"":                  models.PulseGreen,
	}
	for status, want := range tests {
		assert.Equal(t, want, StatusStringPulse(status), status)
	}
}

func model(recs ...models.RawResourceRecord) *correlate.NodeModel {
	m := &correlate.NodeModel{Resources: map[correlate.CompositeKey][]models.RawResourceRecord{}}
	for _, r := range recs {
		k := correlate.CompositeKey{Name: r.Name, Cluster: r.Cluster, Namespace: r.Namespace}
		m.Resources[k] = append(m.Resources[k], r)
	}
	return m
}

func deploy(cluster string, available, desired int64) models.RawResourceRecord {
	return models.RawResourceRecord{
		Kind: "deployment", Name: "web", Namespace: "ns", Cluster: cluster,
		Available: models.NewCount(available), Desired: models.NewCount(desired),
	}
}

func resolverWith(hub string, cs ...models.ClusterInfo) *clusters.Resolver {
	return clusters.NewResolver(hub, cs)
}

func okClusters(names ...string) []models.ClusterInfo {
	out := make([]models.ClusterInfo, 0, len(names))
	for _, n := range names {
		out = append(out, models.ClusterInfo{Name: n, Status: "ok"})
	}
	return out
}

func TestGenericRule(t *testing.T) {
	node := &models.TopologyNode{ID: "deployment--web", Type: models.NodeDeployment, Name: "web", Namespace: "ns",
		ClusterNames: []string{"c1", "c2"}, Specs: &models.WorkloadSpecs{}}
	r := resolverWith("hub", okClusters("c1", "c2")...)

	tests := []struct {
		name  string
		model *correlate.NodeModel
		want  models.Pulse
	}{
		{"no model", nil, models.PulseOrange},
		{"empty model", model(), models.PulseOrange},
		{"all green", model(deploy("c1", 2, 2), deploy("c2", 1, 1)), models.PulseGreen},
		{"worst wins", model(deploy("c1", 2, 2), deploy("c2", 1, 3)), models.PulseYellow},
		{"red wins", model(deploy("c1", 0, 2), deploy("c2", 1, 3)), models.PulseRed},
		{"one cluster pending", model(deploy("c1", 2, 2)), models.PulseYellow},
		{"pending does not upgrade red", model(deploy("c1", 0, 2)), models.PulseRed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(node, Context{Resolver: r, Model: tt.model})
			assert.Equal(t, tt.want, got.Pulse)
			assert.Equal(t, "deployment", got.ShapeType)
			assert.Equal(t, "deployment--web", got.NodeID)
		})
	}
}

func TestGenericRuleWorstOfInstances(t *testing.T) {
	node := &models.TopologyNode{ID: "pod--x", Type: "service", Name: "web", ClusterNames: []string{"c1"}, Specs: &models.WorkloadSpecs{}}
	r := resolverWith("hub", okClusters("c1")...)
	statuses := [][]string{
		{"Running", "Pending", "Error"},
		{"Bound", "Running"},
		{"Running", "Terminating"},
	}
	for _, ss := range statuses {
		var recs []models.RawResourceRecord
		want := models.PulseGreen
		for i, s := range ss {
			recs = append(recs, models.RawResourceRecord{Name: "web", Namespace: string(rune('a' + i)), Cluster: "c1", Status: s})
			want = Worst(want, StatusStringPulse(s))
		}
		assert.Equal(t, want, Compute(node, Context{Resolver: r, Model: model(recs...)}).Pulse, "%v", ss)
	}
}

func TestGenericRuleOfflineClusters(t *testing.T) {
	node := &models.TopologyNode{ID: "d", Type: models.NodeDeployment, Name: "web", Namespace: "ns",
		ClusterNames: []string{"c1"}, Specs: &models.WorkloadSpecs{}}
	r := resolverWith("hub", models.ClusterInfo{Name: "c1", Status: "offline"})
	got := Compute(node, Context{Resolver: r, Model: model(deploy("c1", 1, 1))})
	assert.Equal(t, models.PulseOrange, got.Pulse)
	assert.Equal(t, []string{"hub"}, got.OnlineClusters)
}

func TestGenericRuleIgnoresOfflineFoundClusters(t *testing.T) {
	node := &models.TopologyNode{ID: "d", Type: models.NodeDeployment, Name: "web", Namespace: "ns",
		Specs: &models.WorkloadSpecs{}}
	r := resolverWith("hub",
		models.ClusterInfo{Name: "c1", Status: "ok"},
		models.ClusterInfo{Name: "c2", Status: "offline"})

	got := Compute(node, Context{Resolver: r, Model: model(deploy("c1", 2, 2), deploy("c2", 0, 2))})
	assert.Equal(t, models.PulseGreen, got.Pulse)

	got = Compute(node, Context{Resolver: r, Model: model(deploy("c2", 0, 2))})
	assert.Equal(t, models.PulseOrange, got.Pulse)
	assert.Equal(t, ReasonNoOnlineClusters, got.Reason)

	got = Compute(node, Context{Resolver: r, Model: model(deploy("hub", 1, 2))})
	assert.Equal(t, models.PulseYellow, got.Pulse)
}

func TestGenericRuleResourceCount(t *testing.T) {
	two := 2
	node := &models.TopologyNode{ID: "d", Type: models.NodeDeployment, Name: "web", Namespace: "ns",
		ClusterNames: []string{"c1"}, Specs: &models.WorkloadSpecs{ResourceCount: &two}}
	r := resolverWith("hub", okClusters("c1")...)
	assert.Equal(t, models.PulseYellow, Compute(node, Context{Resolver: r, Model: model(deploy("c1", 1, 1))}).Pulse)
}

func TestGenericRuleTargetNamespaces(t *testing.T) {
	node := &models.TopologyNode{ID: "d", Type: models.NodeDeployment, Name: "web", ClusterNames: []string{"c1"},
		Specs: &models.WorkloadSpecs{TargetNamespaces: map[string][]string{"c1": {"ns", "ns2"}}}}
	r := resolverWith("hub", okClusters("c1")...)
	assert.Equal(t, models.PulseYellow, Compute(node, Context{Resolver: r, Model: model(deploy("c1", 1, 1))}).Pulse)

	scoped := &models.TopologyNode{ID: "ns", Type: models.NodeNamespace, Name: "ns", ClusterNames: []string{"c1"},
		Specs: &models.WorkloadSpecs{ClusterScoped: true}}
	m := model(models.RawResourceRecord{Name: "ns", Cluster: "c1", Status: "Active"})
	assert.Equal(t, models.PulseGreen, Compute(scoped, Context{Resolver: r, Model: m}).Pulse)
}

func TestGenericRulePodReplicas(t *testing.T) {
	node := &models.TopologyNode{ID: "p", Type: models.NodePod, Name: "web", Namespace: "ns",
		ClusterNames: []string{"c1"}, Specs: &models.WorkloadSpecs{}}
	r := resolverWith("hub", okClusters("c1")...)
	pod := func(status string) models.RawResourceRecord {
		return models.RawResourceRecord{Kind: "pod", Name: "web", Namespace: "ns", Cluster: "c1", Status: status}
	}
	three := int64(3)

	m := model(pod("Running"), pod("Running"))
	m.ReplicaCount = &three
	assert.Equal(t, models.PulseYellow, Compute(node, Context{Resolver: r, Model: m}).Pulse)

	m = model(pod("Running"), pod("Running"), pod("Running"))
	m.ReplicaCount = &three
	assert.Equal(t, models.PulseGreen, Compute(node, Context{Resolver: r, Model: m}).Pulse)

	m = model(pod("Running"), pod("CrashLoopBackOff"))
	m.ReplicaCount = &three
	assert.Equal(t, models.PulseRed, Compute(node, Context{Resolver: r, Model: m}).Pulse)
}

func TestApplicationRules(t *testing.T) {
	r := resolverWith("hub")
	flux := &models.TopologyNode{ID: "f", Type: models.NodeFluxApplication}
	assert.Equal(t, models.PulseGreen, Compute(flux, Context{Resolver: r}).Pulse)

	design := &models.TopologyNode{ID: "a", Type: models.NodeApplication, IsDesign: true, Specs: &models.ApplicationSpecs{}}
	assert.Equal(t, models.PulseRed, Compute(design, Context{Resolver: r}).Pulse)

	design.Specs = &models.ApplicationSpecs{Channels: []string{"ns/ch"}}
	assert.Equal(t, models.PulseGreen, Compute(design, Context{Resolver: r}).Pulse)

	notDesign := &models.TopologyNode{ID: "a", Type: models.NodeApplication, Specs: &models.ApplicationSpecs{Channels: []string{"x"}}}
	assert.Equal(t, models.PulseOrange, Compute(notDesign, Context{Resolver: r}).Pulse)
}

func TestArgoRule(t *testing.T) {
	r := resolverWith("hub")
	app := func(specs *models.ApplicationSpecs) *models.TopologyNode {
		specs.IsArgo = true
		return &models.TopologyNode{ID: "a", Type: models.NodeApplication, IsDesign: true, Specs: specs}
	}
	health := func(hs ...string) []models.ArgoApplication {
		out := make([]models.ArgoApplication, 0, len(hs))
		for _, h := range hs {
			out = append(out, models.ArgoApplication{Name: "x", HealthStatus: h})
		}
		return out
	}

	tests := []struct {
		name  string
		specs *models.ApplicationSpecs
		want  models.Pulse
	}{
		{"healthy and degraded", &models.ApplicationSpecs{Self: &health("Healthy")[0], RelatedApps: health("Degraded")}, models.PulseYellow},
		{"all healthy", &models.ApplicationSpecs{RelatedApps: health("Healthy", "Healthy")}, models.PulseGreen},
		{"all degraded", &models.ApplicationSpecs{RelatedApps: health("Degraded", "Degraded")}, models.PulseRed},
		{"all progressing", &models.ApplicationSpecs{RelatedApps: health("Progressing", "Missing", "")}, models.PulseOrange},
		{"empty", &models.ApplicationSpecs{}, models.PulseOrange},
		{"pull model flag", &models.ApplicationSpecs{PullModelTargetLocalCluster: true, RelatedApps: health("Healthy")}, models.PulseYellow},
		{"conditions", &models.ApplicationSpecs{RelatedApps: []models.ArgoApplication{
			{HealthStatus: "Healthy", Conditions: []models.ArgoCondition{{Type: "Warning"}}},
		}}, models.PulseYellow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(app(tt.specs), Context{Resolver: r}).Pulse)
		})
	}

	set := &models.TopologyNode{ID: "s", Type: models.NodeApplicationSet, IsDesign: true,
		Specs: &models.ApplicationSpecs{AppSetApps: health("Healthy", "Degraded"), RelatedApps: health("Healthy")}}
	assert.Equal(t, models.PulseYellow, Compute(set, Context{Resolver: r}).Pulse)
}

func TestPlacementRules(t *testing.T) {
	r := resolverWith("hub")
	pr := &models.TopologyNode{ID: "p", Type: models.NodePlacements, Specs: &models.PlacementSpecs{}}
	assert.Equal(t, models.PulseRed, Compute(pr, Context{Resolver: r}).Pulse)
	pr.Specs = &models.PlacementSpecs{Decisions: []models.PlacementDecision{{ClusterName: "c1"}}}
	assert.Equal(t, models.PulseGreen, Compute(pr, Context{Resolver: r}).Pulse)

	zero, two := 0, 2
	p := &models.TopologyNode{ID: "p", Type: models.NodePlacement, Specs: &models.PlacementSpecs{NumberOfSelectedClusters: &zero}}
	assert.Equal(t, models.PulseRed, Compute(p, Context{Resolver: r}).Pulse)
	p.Specs = &models.PlacementSpecs{NumberOfSelectedClusters: &two}
	assert.Equal(t, models.PulseGreen, Compute(p, Context{Resolver: r}).Pulse)
	p.Specs = &models.PlacementSpecs{}
	assert.Equal(t, models.PulseRed, Compute(p, Context{Resolver: r}).Pulse)

	// deployed placements own no resources
	p.IsDeployable = true
	assert.Equal(t, models.PulseGreen, Compute(p, Context{Resolver: r}).Pulse)
}

func subNode(specs *models.SubscriptionSpecs) *models.TopologyNode {
	if specs == nil {
		specs = &models.SubscriptionSpecs{}
	}
	return &models.TopologyNode{ID: "sub", Type: models.NodeSubscription, Name: "sub", IsDesign: true,
		ClusterNames: []string{"a", "b"}, Specs: specs}
}

func subRec(cluster, status string) models.RawResourceRecord {
	return models.RawResourceRecord{Kind: "subscription", Name: "sub", Namespace: "ns", Cluster: cluster, Status: status}
}

func TestSubscriptionRule(t *testing.T) {
	r := resolverWith("hub", okClusters("a", "b")...)
	tests := []struct {
		name  string
		specs *models.SubscriptionSpecs
		recs  []models.RawResourceRecord
		want  models.Pulse
	}{
		{"failed instance", nil, []models.RawResourceRecord{subRec("a", "Subscribed"), subRec("b", "SubscribedFailed")}, models.PulseRed},
		{"unknown state", nil, []models.RawResourceRecord{subRec("a", "SomeOtherState")}, models.PulseYellow},
		{"all subscribed", nil, []models.RawResourceRecord{subRec("a", "Subscribed"), subRec("b", "Propagated")}, models.PulseGreen},
		{"offline cluster", nil, []models.RawResourceRecord{subRec("a", "Subscribed"), subRec("z", "Subscribed")}, models.PulseYellow},
		{"no instances", nil, nil, models.PulseYellow},
		{"report failed", &models.SubscriptionSpecs{ReportResults: []models.ReportResult{{Source: "a", Result: "failed"}}},
			[]models.RawResourceRecord{subRec("a", "Subscribed")}, models.PulseRed},
		{"package failed", &models.SubscriptionSpecs{Statuses: map[string]models.ClusterPackages{
			"a": {Packages: map[string]models.PackageStatus{"web": {Phase: "Failed"}}},
		}}, []models.RawResourceRecord{subRec("a", "Subscribed")}, models.PulseYellow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(subNode(tt.specs), Context{Resolver: r, Model: model(tt.recs...)})
			assert.Equal(t, tt.want, got.Pulse)
		})
	}
}

func TestSubscriptionFailureIsOrderIndependent(t *testing.T) {
	r := resolverWith("hub", okClusters("a", "b", "c")...)
	recs := []models.RawResourceRecord{subRec("a", "Subscribed"), subRec("b", "PropagationFailed"), subRec("c", "Propagated")}
	for i := range recs {
		rotated := append(append([]models.RawResourceRecord{}, recs[i:]...), recs[:i]...)
		assert.Equal(t, models.PulseRed, Compute(subNode(nil), Context{Resolver: r, Model: model(rotated...)}).Pulse)
	}
}

func TestSubscriptionBlocked(t *testing.T) {
	r := resolverWith("hub")
	node := subNode(&models.SubscriptionSpecs{IsBlocked: true})
	assert.Equal(t, models.PulseBlocked, Compute(node, Context{Resolver: r}).Pulse)

	monday := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	node = subNode(&models.SubscriptionSpecs{TimeWindow: &models.TimeWindow{
		WindowType: "active", Daysofweek: []string{"Saturday", "Sunday"},
	}})
	got := Compute(node, Context{Resolver: r, Now: monday})
	assert.Equal(t, models.PulseBlocked, got.Pulse)
	assert.Equal(t, ReasonTimeWindow, got.Reason)
}

func TestClusterRule(t *testing.T) {
	r := resolverWith("hub")
	node := func(cs ...models.ClusterInfo) *models.TopologyNode {
		return &models.TopologyNode{ID: "c", Type: models.NodeCluster, Clusters: cs, Specs: &models.ClusterSpecs{}}
	}
	c := func(name, status string) models.ClusterInfo { return models.ClusterInfo{Name: name, Status: status} }

	assert.Equal(t, models.PulseRed, Compute(node(c("a", "ok"), c("b", "ok"), c("c", "offline")), Context{Resolver: r}).Pulse)
	assert.Equal(t, models.PulseYellow, Compute(node(c("a", "ok"), c("b", "pendingimport")), Context{Resolver: r}).Pulse)
	assert.Equal(t, models.PulseOrange, Compute(node(c("a", "pendingimport")), Context{Resolver: r}).Pulse)
	assert.Equal(t, models.PulseGreen, Compute(node(c("a", "ok"), c("b", "OK")), Context{Resolver: r}).Pulse)
	assert.Equal(t, models.PulseYellow, Compute(node(c("a", "ok"), c("b", "")), Context{Resolver: r}).Pulse)
	assert.Equal(t, models.PulseOrange, Compute(node(), Context{Resolver: r}).Pulse)
	assert.Equal(t, models.PulseYellow, Compute(node(c("a", "ok"), c("b", "unknown")), Context{Resolver: r}).Pulse)

	managed := func(name, available string) models.ClusterInfo {
		return models.ClusterInfo{Name: name, HubAcceptedManagedCluster: "True", ManagedClusterJoined: "True",
			ManagedClusterConditionAvailable: available}
	}
	assert.Equal(t, models.PulseGreen, Compute(node(managed("a", "True")), Context{Resolver: r}).Pulse)
	assert.Equal(t, models.PulseRed, Compute(node(managed("a", "True"), managed("b", "False")), Context{Resolver: r}).Pulse)
	notJoined := models.ClusterInfo{Name: "b", HubAcceptedManagedCluster: "True", ManagedClusterJoined: "False"}
	assert.Equal(t, models.PulseYellow, Compute(node(managed("a", "True"), notJoined), Context{Resolver: r}).Pulse)

	withArgo := &models.TopologyNode{ID: "c", Type: models.NodeCluster,
		Specs: &models.ClusterSpecs{AppClusters: []string{"hub"}, TargetNamespaces: map[string][]string{"hub": {"ns"}}}}
	assert.Equal(t, models.PulseGreen, Compute(withArgo, Context{Resolver: r}).Pulse)

	filtered := node(c("a", "ok"), c("zombie", "offline"))
	filtered.ClusterNames = []string{"a"}
	assert.Equal(t, models.PulseGreen, Compute(filtered, Context{Resolver: r}).Pulse)
}

func TestAnsibleRule(t *testing.T) {
	job := func(reason, result string) *models.AnsibleJob {
		j := &models.AnsibleJob{}
		if reason != "" {
			j.Status.Conditions = []models.AnsibleJobCondition{
				{Type: "Running", Reason: "ignored"},
				{Type: "Running", Reason: reason, AnsibleResult: &models.AnsibleResult{}},
			}
		}
		if result != "" {
			j.Status.AnsibleJobResult = &models.AnsibleJobResult{Status: result}
		}
		return j
	}
	tests := []struct {
		name string
		job  *models.AnsibleJob
		want models.Pulse
	}{
		{"no job", nil, models.PulseOrange},
		{"successful", job("Successful", "successful"), models.PulseGreen},
		{"task failed", job("Failed", "successful"), models.PulseRed},
		{"job error", job("Running", "error"), models.PulseRed},
		{"canceled", job("Successful", "canceled"), models.PulseYellow},
		{"unknown task reason", job("Other", "running"), models.PulseYellow},
		{"no task result", job("", "new"), models.PulseOrange},
		{"yellow beats orange", job("Other", ""), models.PulseYellow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnsiblePulse(tt.job))
			node := &models.TopologyNode{ID: "hook", Type: models.NodeAnsibleJob, Specs: &models.AnsibleJobSpecs{Job: tt.job}}
			assert.Equal(t, tt.want, Compute(node, Context{Resolver: resolverWith("hub")}).Pulse)
		})
	}
}

func TestComputeDoesNotMutateNode(t *testing.T) {
	node := &models.TopologyNode{ID: "d", Type: models.NodeDeployment, Name: "web", Namespace: "ns",
		ClusterNames: []string{"c1"}, Specs: &models.WorkloadSpecs{}}
	before := *node
	Compute(node, Context{Resolver: resolverWith("hub", okClusters("c1")...), Model: model(deploy("c1", 1, 1))})
	assert.Equal(t, before, *node)
}

func TestSpinnerResult(t *testing.T) {
	res := SpinnerResult(&models.TopologyNode{ID: "x", Type: models.NodePod})
	assert.Equal(t, models.PulseSpinner, res.Pulse)
	assert.Equal(t, "pod", res.ShapeType)
	require.False(t, res.Pulse.IsTerminal())
}
