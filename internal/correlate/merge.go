package correlate

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
)

// MergeSearchResults flattens the related groups of several search results
// into one group per kind. Identical records are kept once. Groups are sorted
// by kind and keep the order in which records were first seen.
func MergeSearchResults(results []models.SearchResult) []models.RelatedGroup {
	byKind := make(map[string]*models.RelatedGroup)
	seen := make(map[string]map[string]bool)
	for _, res := range results {
		for _, g := range res.Related {
			kind := strings.ToLower(g.Kind)
			group, ok := byKind[kind]
			if !ok {
				group = &models.RelatedGroup{Kind: kind}
				byKind[kind] = group
				seen[kind] = make(map[string]bool)
			}
			for _, item := range g.Items {
				key := recordKey(item)
				if seen[kind][key] {
					continue
				}
				seen[kind][key] = true
				group.Items = append(group.Items, item)
			}
		}
	}

	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	out := make([]models.RelatedGroup, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, *byKind[k])
	}
	return out
}

func recordKey(r models.RawResourceRecord) string {
	b, err := json.Marshal(r)
	if err != nil {
		return r.Kind + "/" + r.Cluster + "/" + r.Namespace + "/" + r.Name + "/" + r.SelfLink
	}
	return string(b)
}
