// Package normalize recovers the logical name of a resource from the name of an
// observed instance by stripping controller, Helm, KubeVirt and route generated
// suffixes. All functions are total: malformed labels leave the name unchanged.
package normalize

import (
	"regexp"
	"strings"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
)

// Label keys that carry controller generated hashes.
const (
	LabelPodTemplateHash        = "pod-template-hash"
	LabelControllerRevisionHash = "controller-revision-hash"
	LabelControllerHash         = "controller.kubernetes.io/hash"
	LabelDeploymentConfigName   = "openshift.io/deployment-config.name"
	LabelDeploymentConfig       = "deploymentconfig"
	LabelRelease                = "release"
	LabelInstance               = "app.kubernetes.io/instance"
	LabelVMName                 = "vm.kubevirt.io/name"
	LabelInstancetypeObject     = "instancetype.kubevirt.io/object-name"

	routeAPIGroup       = "route.openshift.io"
	ingressDeployableID = "-Ingress-"
	kubevirtMarker      = "kubevirt.io"
)

var (
	// Kubernetes generates suffixes from an alphabet without vowels or 0, 1, 3.
	generatedSuffix   = regexp.MustCompile(`^([0-9]+|[bcdfghjklmnpqrstvwxz2456789]{5})$`)
	releaseSuffix     = regexp.MustCompile(`-[0-9a-zA-Z]{4,5}$`)
	helmReleaseSuffix = regexp.MustCompile(`-[0-9a-f]{8,10}-[0-9a-z]{4,5}$`)
	uuidOrdinal       = `-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}-[0-9]+$`
	anyRevision       = regexp.MustCompile(`^(.+)-[a-z0-9.]+` + uuidOrdinal)
)

// Context carries the per-node facts some rules depend on.
type Context struct {
	// HasHelmReleases enables chart release naming.
	HasHelmReleases bool
	// IngressRules is the number of rules on the Ingress a route node was generated from.
	IngressRules int
}

// Normalize returns the correlation name for a record.
func Normalize(r models.RawResourceRecord, ctx Context) string {
	var name string
	if IsKubeVirt(r) {
		name = NameWithoutVMSuffix(r)
	} else {
		noHash, _, deployableName := NameWithoutPodHash(r)
		name = noHash
		if deployableName != "" {
			name = deployableName
		}
	}
	if r.KindLower() == "route" {
		name = routeWithoutHash(r, name, ctx)
	}
	name = NameWithoutChartRelease(r, name, ctx.HasHelmReleases)
	if name == "" {
		name = RemoveReleaseGeneratedSuffix(r.Name)
	}
	return name
}

// NameWithoutPodHash strips the controller hash (and, for pods, the replica or
// ordinal suffix) from the record name. deployableName is the owning
// DeploymentConfig when the record carries one.
func NameWithoutPodHash(r models.RawResourceRecord) (name, podHash, deployableName string) {
	name = r.Name
	labels := r.Labels()
	hashFound := false
	for _, key := range []string{LabelPodTemplateHash, LabelControllerRevisionHash, LabelControllerHash} {
		v, ok := labels[key]
		if !ok || v == "" {
			continue
		}
		podHash = v
		hashFound = true
		name = strings.Replace(name, "-"+v, "", 1)
		break
	}
	if hashFound && r.KindLower() == "pod" {
		name = trimGeneratedSegment(name)
	}
	if v := labels[LabelDeploymentConfigName]; v != "" {
		deployableName = v
	} else if v := labels[LabelDeploymentConfig]; v != "" {
		deployableName = v
	}
	return name, podHash, deployableName
}

// NameWithoutRouteHash strips the suffix OpenShift appends to routes it creates
// from an Ingress. Routes backing an Ingress with more than one rule keep their name.
func NameWithoutRouteHash(r models.RawResourceRecord, ctx Context) string {
	return routeWithoutHash(r, r.Name, ctx)
}

func routeWithoutHash(r models.RawResourceRecord, name string, ctx Context) string {
	if r.KindLower() != "route" || r.APIGroup != routeAPIGroup {
		return name
	}
	if !strings.Contains(r.HostingDeployable, ingressDeployableID) || ctx.IngressRules > 1 {
		return name
	}
	return trimGeneratedSegment(name)
}

// NameWithoutChartRelease removes Helm release naming from name.
func NameWithoutChartRelease(r models.RawResourceRecord, name string, hasHelmReleases bool) string {
	kind := r.KindLower()
	if !hasHelmReleases || kind == "subscription" {
		return name
	}
	labels := r.Labels()
	if release, ok := labels[LabelRelease]; ok && release != "" {
		result := name
		if strings.HasPrefix(result, release) {
			result = strings.Replace(result, release+"-", "", 1)
			result = strings.Replace(result, release, "", 1)
		}
		if result == "" || result == "-" {
			result = RemoveReleaseGeneratedSuffix(name)
		}
		return result
	}
	if kind == "helmrelease" {
		return helmReleaseName(r, name)
	}
	if instance := labels[LabelInstance]; instance != "" && strings.HasPrefix(name, instance+"-") {
		return strings.TrimPrefix(name, instance+"-")
	}
	return name
}

func helmReleaseName(r models.RawResourceRecord, name string) string {
	base := name
	if loc := helmReleaseSuffix.FindStringIndex(base); loc != nil {
		base = base[:loc[0]]
	} else if i := strings.LastIndex(base, "-"); i > 0 {
		base = base[:i]
	}
	owner := r.HostingDeployable
	if i := strings.LastIndex(owner, "/"); i >= 0 {
		owner = owner[i+1:]
	}
	ownerSegs := strings.Split(owner, "-")
	if owner == "" || len(ownerSegs) < 2 {
		return base
	}
	nameSegs := strings.Split(base, "-")
	return strings.Join(ownerSegs[:len(ownerSegs)-1], "-") + "-" + nameSegs[len(nameSegs)-1]
}

// IsKubeVirt reports whether any label key belongs to KubeVirt.
func IsKubeVirt(r models.RawResourceRecord) bool {
	for k := range r.Labels() {
		if strings.Contains(k, kubevirtMarker) {
			return true
		}
	}
	return false
}

// NameWithoutVMSuffix maps KubeVirt generated objects back to the VM name.
func NameWithoutVMSuffix(r models.RawResourceRecord) string {
	name := r.Name
	labels := r.Labels()
	switch r.KindLower() {
	case "persistentvolumeclaim", "datavolume":
		return strings.TrimSuffix(name, "-volume")
	case "controllerrevision":
		re := anyRevision
		if obj := labels[LabelInstancetypeObject]; obj != "" {
			re = regexp.MustCompile(`^(.+)-` + regexp.QuoteMeta(obj) + uuidOrdinal)
		}
		if m := re.FindStringSubmatch(name); m != nil {
			return m[1]
		}
		return name
	case "pod":
		if vm := labels[LabelVMName]; vm != "" {
			return vm
		}
	}
	return name
}

// RemoveReleaseGeneratedSuffix strips a trailing -[0-9a-zA-Z]{4,5} token.
func RemoveReleaseGeneratedSuffix(name string) string {
	return releaseSuffix.ReplaceAllString(name, "")
}

func trimGeneratedSegment(name string) string {
	i := strings.LastIndex(name, "-")
	if i <= 0 {
		return name
	}
	if generatedSuffix.MatchString(name[i+1:]) {
		return name[:i]
	}
	return name
}

// Candidates returns the distinct names a record may be known by on a node:
// the normalized name, the route-dehashed name and the chart-stripped name.
func Candidates(r models.RawResourceRecord, ctx Context) []string {
	out := make([]string, 0, 3)
	seen := make(map[string]bool, 3)
	for _, n := range []string{
		Normalize(r, ctx),
		NameWithoutRouteHash(r, ctx),
		NameWithoutChartRelease(r, r.Name, ctx.HasHelmReleases),
	} {
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// ParseLabels decodes the index's "k1=v1; k2=v2" label string.
func ParseLabels(label string) map[string]string {
	return models.ParseLabels(label)
}

// LongestCommonSubstring returns the longest substring shared by a and b.
// Ties resolve to the earliest occurrence in a.
func LongestCommonSubstring(a, b string) string {
	if a == "" || b == "" {
		return ""
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	best, end := 0, 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > best {
					best, end = cur[j], i
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return a[end-best : end]
}

// ChannelBase derives the shared name of a chunked channel list
// ("ns/ch//0", "ns/ch//1") as the longest common substring of all entries.
func ChannelBase(channels []string) string {
	if len(channels) == 0 {
		return ""
	}
	base := channels[0]
	for _, c := range channels[1:] {
		base = LongestCommonSubstring(base, c)
	}
	return strings.TrimRight(base, "/-,")
}
