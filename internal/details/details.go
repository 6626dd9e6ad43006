// Package details turns a computed node into label/value rows for the
// details panel.
package details

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kubilitics/kubilitics-appstatus/internal/correlate"
	"github.com/kubilitics/kubilitics-appstatus/internal/models"
	"github.com/kubilitics/kubilitics-appstatus/internal/pulse"
)

// Row labels.
const (
	LabelType      = "Type"
	LabelNamespace = "Namespace"
	LabelClusters  = "Clusters"
	LabelStatus    = "Status"
	LabelReplicas  = "Replicas"
	LabelJob       = "Ansible job"
	LabelJobURL    = "Ansible job URL"
	LabelWindow    = "Time window"
)

// Build returns the detail rows for one node.
func Build(node *models.TopologyNode, status models.StatusResult, m *correlate.NodeModel) []models.Detail {
	rows := []models.Detail{{Label: LabelType, Value: string(node.Type)}}
	if node.Namespace != "" {
		rows = append(rows, models.Detail{Label: LabelNamespace, Value: node.Namespace})
	}
	if len(status.OnlineClusters) > 0 {
		rows = append(rows, models.Detail{Label: LabelClusters, Value: strings.Join(status.OnlineClusters, ", ")})
	}
	value := string(status.Pulse)
	if status.Reason != "" {
		value += " (" + status.Reason + ")"
	}
	rows = append(rows, models.Detail{Label: LabelStatus, Value: value, Status: string(status.Pulse)})

	switch s := node.Specs.(type) {
	case *models.SubscriptionSpecs:
		if s.TimeWindow != nil && s.TimeWindow.WindowType != "" {
			rows = append(rows, models.Detail{Label: LabelWindow, Value: windowText(s.TimeWindow)})
		}
	case *models.AnsibleJobSpecs:
		rows = append(rows, ansibleRows(s)...)
	}

	if m != nil && m.ReplicaCount != nil {
		rows = append(rows, models.Detail{Label: LabelReplicas, Value: fmt.Sprintf("%d", *m.ReplicaCount)})
	}
	return append(rows, instanceRows(m)...)
}

func instanceRows(m *correlate.NodeModel) []models.Detail {
	var rows []models.Detail
	for _, inst := range m.Instances() {
		for _, r := range inst.Records {
			p := pulse.RecordPulse(r)
			where := r.Cluster
			if r.Namespace != "" {
				where = r.Cluster + "/" + r.Namespace
			}
			text := r.Status
			if r.Desired.Valid {
				text = fmt.Sprintf("%d/%d ready", r.Available.Int(), r.Desired.Value)
			}
			rows = append(rows, models.Detail{
				Label:  r.Name,
				Value:  strings.TrimSpace(where + " " + text),
				Status: string(p),
				Indent: true,
			})
		}
	}
	return rows
}

func ansibleRows(s *models.AnsibleJobSpecs) []models.Detail {
	rows := []models.Detail{{Label: LabelJob, Value: s.JobRef("").String()}}
	if s.Job == nil || s.Job.Status.AnsibleJobResult == nil {
		return rows
	}
	res := s.Job.Status.AnsibleJobResult
	p := pulse.AnsiblePulse(s.Job)
	rows = append(rows, models.Detail{Label: LabelStatus, Value: res.Status, Status: string(p), Indent: true})
	if res.URL != "" {
		rows = append(rows, models.Detail{Label: LabelJobURL, Value: res.URL, Indent: true})
	}
	return rows
}

func windowText(tw *models.TimeWindow) string {
	parts := []string{tw.WindowType}
	if len(tw.Daysofweek) > 0 {
		days := append([]string(nil), tw.Daysofweek...)
		sort.Strings(days)
		parts = append(parts, strings.Join(days, ","))
	}
	for _, h := range tw.Hours {
		parts = append(parts, h.Start+"-"+h.End)
	}
	if tw.Location != "" {
		parts = append(parts, tw.Location)
	}
	return strings.Join(parts, " ")
}
