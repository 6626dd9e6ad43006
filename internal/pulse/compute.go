package pulse

import (
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-appstatus/internal/clusters"
	"github.com/kubilitics/kubilitics-appstatus/internal/correlate"
	"github.com/kubilitics/kubilitics-appstatus/internal/models"
)

// Reasons attached to a StatusResult.
const (
	ReasonNoResources      = "no-resources"
	ReasonNoOnlineClusters = "no-online-clusters"
	ReasonCountMismatch    = "resource-count-mismatch"
	ReasonAllPending       = "all-pending"
	ReasonSomePending      = "some-pending"
	ReasonNoChannels       = "no-channels"
	ReasonNoDecisions      = "no-placement-decisions"
	ReasonTimeWindow       = "time-window-blocked"
	ReasonPullModel        = "argo-pull-model-conditions"
	ReasonNoApps           = "no-argo-applications"
	ReasonDelegated        = "delegated"
	ReasonNoClusters       = "no-clusters"
)

// Context is everything Compute reads besides the node itself.
type Context struct {
	Resolver *clusters.Resolver
	// Model is the node's correlated resources; nil means nothing was found.
	Model *correlate.NodeModel
	Now   time.Time
}

// Compute returns the status of node. It does not modify node or ctx.
func Compute(node *models.TopologyNode, ctx Context) models.StatusResult {
	if ctx.Resolver == nil {
		ctx.Resolver = clusters.NewResolver("", nil)
	}
	if ctx.Now.IsZero() {
		ctx.Now = time.Now()
	}
	online := ctx.Resolver.Online(node)
	p, reason := compute(node, ctx, online)
	return models.StatusResult{
		NodeID:         node.ID,
		Pulse:          p,
		ShapeType:      string(node.Type),
		OnlineClusters: online,
		Reason:         reason,
	}
}

// SpinnerResult is the status of a node whose data is still being fetched.
func SpinnerResult(node *models.TopologyNode) models.StatusResult {
	return models.StatusResult{
		NodeID:    node.ID,
		Pulse:     models.PulseSpinner,
		ShapeType: string(node.Type),
	}
}

func compute(node *models.TopologyNode, ctx Context, online []string) (models.Pulse, string) {
	switch node.Type {
	case models.NodeFluxApplication, models.NodeOCPApplication:
		return models.PulseGreen, ReasonDelegated

	case models.NodeApplication:
		app := node.Application()
		if app != nil && app.IsArgo {
			return argoPulse(app, false)
		}
		if node.IsDeployable || !node.IsDesign {
			return genericPulse(node, ctx, online)
		}
		if app == nil || len(app.Channels) == 0 {
			return models.PulseRed, ReasonNoChannels
		}
		return models.PulseGreen, ""

	case models.NodeApplicationSet:
		if node.IsDeployable || !node.IsDesign {
			return genericPulse(node, ctx, online)
		}
		app := node.Application()
		if app == nil {
			app = &models.ApplicationSpecs{}
		}
		return argoPulse(app, true)

	case models.NodePlacements:
		if node.IsDeployable {
			return genericPulse(node, ctx, online)
		}
		if ps := node.Placement(); ps == nil || len(ps.Decisions) == 0 {
			return models.PulseRed, ReasonNoDecisions
		}
		return models.PulseGreen, ""

	case models.NodePlacement:
		if node.IsDeployable {
			return genericPulse(node, ctx, online)
		}
		ps := node.Placement()
		if ps == nil || ps.NumberOfSelectedClusters == nil || *ps.NumberOfSelectedClusters == 0 {
			return models.PulseRed, ReasonNoDecisions
		}
		return models.PulseGreen, ""

	case models.NodeSubscription:
		sub := node.Subscription()
		if sub != nil && (sub.IsBlocked || IsBlocked(sub.TimeWindow, ctx.Now)) {
			return models.PulseBlocked, ReasonTimeWindow
		}
		if node.IsDeployable || !node.IsDesign {
			return genericPulse(node, ctx, online)
		}
		return subscriptionPulse(sub, ctx.Model, online), ""

	case models.NodeCluster:
		return clusterPulse(node, ctx.Resolver.Hub)

	case models.NodeAnsibleJob:
		spec, _ := node.Specs.(*models.AnsibleJobSpecs)
		var job *models.AnsibleJob
		if spec != nil {
			job = spec.Job
		}
		return AnsiblePulse(job), ""
	}
	return genericPulse(node, ctx, online)
}

func genericPulse(node *models.TopologyNode, ctx Context, online []string) (models.Pulse, string) {
	m := ctx.Model
	if m.Empty() {
		if node.Type == models.NodePlacement {
			return models.PulseGreen, ""
		}
		return models.PulseOrange, ReasonNoResources
	}
	if len(online) == 0 {
		return models.PulseOrange, ReasonNoOnlineClusters
	}
	ws := node.Workload()
	if ws != nil && ws.ResourceCount != nil && node.Type != models.NodePod && *ws.ResourceCount != len(m.Resources) {
		return models.PulseYellow, ReasonCountMismatch
	}

	relevant := relevantClusters(node, ctx.Resolver, m, online)
	if len(relevant) == 0 {
		return models.PulseOrange, ReasonNoOnlineClusters
	}

	result := models.PulseGreen
	slots, pending := 0, 0
	for _, cluster := range relevant {
		for _, ns := range targetNamespaces(node, ws, m, cluster) {
			slots++
			recs := slotRecords(m, cluster, ns)
			if len(recs) == 0 {
				pending++
				continue
			}
			result = Worst(result, slotPulse(node, m, recs))
		}
	}
	switch {
	case pending == slots:
		return models.PulseOrange, ReasonAllPending
	case pending > 0:
		return Worst(result, models.PulseYellow), ReasonSomePending
	}
	return result, ""
}

func slotPulse(node *models.TopologyNode, m *correlate.NodeModel, recs []models.RawResourceRecord) models.Pulse {
	if node.Type == models.NodePod && m.ReplicaCount != nil {
		var available, unavailable int64
		for _, r := range recs {
			switch StatusStringPulse(r.Status) {
			case models.PulseGreen:
				available++
			case models.PulseRed:
				unavailable++
			}
		}
		return DesiredAvailable(available, *m.ReplicaCount, unavailable)
	}
	p := models.PulseGreen
	for _, r := range recs {
		p = Worst(p, RecordPulse(r))
	}
	return p
}

// relevantClusters is the node's placed clusters that are online or, for a
// node without placement, the online clusters its resources were found on.
func relevantClusters(node *models.TopologyNode, r *clusters.Resolver, m *correlate.NodeModel, online []string) []string {
	base := clusters.BaseClusterNames(node)
	if len(base) > 0 {
		return clusters.Intersect(dedupe(base), online)
	}
	var found []string
	for _, k := range m.Keys() {
		if r.Reachable(node, k.Cluster) {
			found = append(found, k.Cluster)
		}
	}
	return dedupe(found)
}

func targetNamespaces(node *models.TopologyNode, ws *models.WorkloadSpecs, m *correlate.NodeModel, cluster string) []string {
	if ws != nil && ws.ClusterScoped {
		return []string{""}
	}
	if ws != nil && len(ws.TargetNamespaces[cluster]) > 0 {
		return ws.TargetNamespaces[cluster]
	}
	if node.Namespace != "" {
		return []string{node.Namespace}
	}
	var nss []string
	for _, k := range m.Keys() {
		if k.Cluster == cluster {
			nss = append(nss, k.Namespace)
		}
	}
	if len(nss) == 0 {
		return []string{""}
	}
	return dedupe(nss)
}

// slotRecords returns the records on cluster in ns; "" matches any namespace.
func slotRecords(m *correlate.NodeModel, cluster, ns string) []models.RawResourceRecord {
	var out []models.RawResourceRecord
	for _, k := range m.Keys() {
		if k.Cluster == cluster && (ns == "" || k.Namespace == ns) {
			out = append(out, m.Resources[k]...)
		}
	}
	return out
}

func subscriptionPulse(sub *models.SubscriptionSpecs, m *correlate.NodeModel, online []string) models.Pulse {
	isOnline := make(map[string]bool, len(online))
	for _, c := range online {
		isOnline[c] = true
	}
	result := models.PulseGreen
	placed := false
	if m != nil {
		for _, r := range m.Records() {
			deployed := r.Status == "Subscribed" || r.Status == "Propagated"
			if strings.Contains(r.Status, "Failed") {
				result = models.PulseRed
			}
			if deployed {
				placed = true
			}
			if !isOnline[r.Cluster] || !deployed {
				result = Worst(result, models.PulseYellow)
			}
		}
	}
	if result == models.PulseGreen && !placed {
		result = models.PulseYellow
	}
	if sub == nil {
		return result
	}
	for _, rr := range sub.ReportResults {
		if rr.Result == "failed" {
			result = models.PulseRed
		}
	}
	for _, cs := range sub.Statuses {
		for _, pkg := range cs.Packages {
			if pkg.Phase == "Failed" && result == models.PulseGreen {
				result = models.PulseYellow
			}
		}
	}
	return result
}

func argoPulse(app *models.ApplicationSpecs, isAppSet bool) (models.Pulse, string) {
	var apps []models.ArgoApplication
	if isAppSet {
		apps = app.AppSetApps
	} else {
		if app.Self != nil {
			apps = append(apps, *app.Self)
		}
		apps = append(apps, app.RelatedApps...)
	}
	if app.PullModelTargetLocalCluster {
		return models.PulseYellow, ReasonPullModel
	}
	var healthy, degraded, missing int
	for _, a := range apps {
		if len(a.Conditions) > 0 {
			return models.PulseYellow, ReasonPullModel
		}
		switch a.HealthStatus {
		case "Healthy":
			healthy++
		case "Degraded":
			degraded++
		default:
			missing++
		}
	}
	total := len(apps)
	switch {
	case total == 0:
		return models.PulseOrange, ReasonNoApps
	case degraded == total:
		return models.PulseRed, ""
	case missing == total:
		return models.PulseOrange, ""
	case healthy < total:
		return models.PulseYellow, ""
	}
	return models.PulseGreen, ""
}

func clusterPulse(node *models.TopologyNode, hub string) (models.Pulse, string) {
	candidates := append([]models.ClusterInfo(nil), node.Clusters...)
	if cs, ok := node.Specs.(*models.ClusterSpecs); ok && cs != nil {
		extra := append([]string(nil), cs.AppClusters...)
		for name := range cs.TargetNamespaces {
			extra = append(extra, name)
		}
		for _, name := range dedupe(extra) {
			if _, found := clusters.Find(candidates, name); found {
				continue
			}
			status := models.ClusterStatusUnknown
			if name == hub {
				status = models.ClusterStatusOK
			}
			candidates = append(candidates, models.ClusterInfo{Name: name, Status: status})
		}
	}
	if names := clusters.BaseClusterNames(node); len(names) > 0 {
		keep := make(map[string]bool, len(names))
		for _, n := range names {
			keep[n] = true
		}
		filtered := candidates[:0]
		for _, c := range candidates {
			if keep[c.ClusterName()] {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}
	if len(candidates) == 0 {
		return models.PulseOrange, ReasonNoClusters
	}

	var ok, pending, offline int
	for _, c := range candidates {
		if c.Status == "" && hasConditions(c) {
			c.Status = clusters.ArgoClusterStatus(c)
		}
		switch {
		case c.Status == "" || strings.EqualFold(c.Status, models.ClusterStatusUnknown):
		case clusters.IsPending(c):
			pending++
		case clusters.IsOnline(c):
			ok++
		default:
			offline++
		}
	}
	total := len(candidates)
	switch {
	case offline > 0:
		return models.PulseRed, ""
	case pending == total:
		return models.PulseOrange, ""
	case ok < total:
		return models.PulseYellow, ""
	}
	return models.PulseGreen, ""
}

func hasConditions(c models.ClusterInfo) bool {
	return c.HubAcceptedManagedCluster != "" || c.ManagedClusterJoined != "" || c.ManagedClusterConditionAvailable != ""
}

// AnsiblePulse combines the task and job results of an AnsibleJob.
func AnsiblePulse(job *models.AnsibleJob) models.Pulse {
	task, jobP := models.PulseOrange, models.PulseOrange
	if job != nil {
		task = ansibleTaskPulse(job.Status.Conditions)
		if res := job.Status.AnsibleJobResult; res != nil {
			jobP = ansibleJobResultPulse(res.Status)
		}
	}
	switch {
	case task == models.PulseRed || jobP == models.PulseRed:
		return models.PulseRed
	case task == models.PulseYellow || jobP == models.PulseYellow:
		return models.PulseYellow
	case task == models.PulseOrange || jobP == models.PulseOrange:
		return models.PulseOrange
	}
	return models.PulseGreen
}

func ansibleTaskPulse(conds []models.AnsibleJobCondition) models.Pulse {
	for _, c := range conds {
		if c.AnsibleResult == nil {
			continue
		}
		switch c.Reason {
		case "Failed":
			return models.PulseRed
		case "Successful", "Running":
			return models.PulseGreen
		}
		return models.PulseYellow
	}
	return models.PulseOrange
}

func ansibleJobResultPulse(status string) models.Pulse {
	switch strings.ToLower(status) {
	case "failed", "error":
		return models.PulseRed
	case "successful", "running", "new":
		return models.PulseGreen
	case "canceled":
		return models.PulseYellow
	}
	return models.PulseOrange
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
