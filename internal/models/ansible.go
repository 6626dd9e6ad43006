package models

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// AnsibleJobGVR is the resource the hook lookup lists.
var AnsibleJobGVR = schema.GroupVersionResource{
	Group:    "tower.ansible.com",
	Version:  "v1alpha1",
	Resource: "ansiblejobs",
}

// AnsibleJob is the subset of tower.ansible.com/v1alpha1 AnsibleJob used for hook status.
type AnsibleJob struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   AnsibleJobSpec   `json:"spec,omitempty"`
	Status AnsibleJobStatus `json:"status,omitempty"`
}

type AnsibleJobSpec struct {
	JobTemplateName string `json:"job_template_name,omitempty"`
	TowerAuthSecret string `json:"tower_auth_secret,omitempty"`
}

// AnsibleResult is set on a condition once the runner produced task output.
type AnsibleResult struct {
	Changed    int    `json:"changed"`
	Completion string `json:"completion,omitempty"`
	Failures   int    `json:"failures"`
	OK         int    `json:"ok"`
	Skipped    int    `json:"skipped"`
}

type AnsibleJobCondition struct {
	Type               string         `json:"type,omitempty"`
	Status             string         `json:"status,omitempty"`
	Reason             string         `json:"reason,omitempty"`
	Message            string         `json:"message,omitempty"`
	LastTransitionTime string         `json:"lastTransitionTime,omitempty"`
	AnsibleResult      *AnsibleResult `json:"ansibleResult,omitempty"`
}

type AnsibleJobResult struct {
	Status   string `json:"status,omitempty"`
	URL      string `json:"url,omitempty"`
	Started  string `json:"started,omitempty"`
	Finished string `json:"finished,omitempty"`
	Elapsed  string `json:"elapsed,omitempty"`
}

type AnsibleJobStatus struct {
	Conditions       []AnsibleJobCondition `json:"conditions,omitempty"`
	AnsibleJobResult *AnsibleJobResult     `json:"ansibleJobResult,omitempty"`
}
