package ansible

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
)

func ansibleJob(ns, name, resultStatus string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "tower.ansible.com/v1alpha1",
		"kind":       "AnsibleJob",
		"metadata":   map[string]interface{}{"name": name, "namespace": ns},
		"spec":       map[string]interface{}{"job_template_name": "deploy"},
		"status": map[string]interface{}{
			"ansibleJobResult": map[string]interface{}{
				"status": resultStatus,
				"url":    "https://tower.example.com/#/jobs/42",
			},
			"conditions": []interface{}{
				map[string]interface{}{
					"type":   "Running",
					"reason": "Successful",
					"ansibleResult": map[string]interface{}{
						"changed":  int64(1),
						"failures": int64(0),
						"ok":       int64(3),
						"skipped":  int64(0),
					},
				},
			},
		},
	}}
}

func newFakeClient(objs ...runtime.Object) *dynamicfake.FakeDynamicClient {
	scheme := runtime.NewScheme()
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme,
		map[schema.GroupVersionResource]string{models.AnsibleJobGVR: "AnsibleJobList"}, objs...)
}

func TestJobs(t *testing.T) {
	client := newFakeClient(
		ansibleJob("hooks", "prehook-abc", "successful"),
		ansibleJob("hooks", "unrelated", "failed"),
		ansibleJob("other", "posthook-def", "failed"),
	)
	l := NewLookup(client, zaptest.NewLogger(t))

	pre := types.NamespacedName{Namespace: "hooks", Name: "prehook-abc"}
	post := types.NamespacedName{Namespace: "other", Name: "posthook-def"}
	missing := types.NamespacedName{Namespace: "hooks", Name: "gone"}

	jobs, err := l.Jobs(context.Background(), []types.NamespacedName{pre, post, missing, {}})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	job := jobs[pre]
	require.NotNil(t, job)
	assert.Equal(t, "deploy", job.Spec.JobTemplateName)
	require.NotNil(t, job.Status.AnsibleJobResult)
	assert.Equal(t, "successful", job.Status.AnsibleJobResult.Status)
	require.Len(t, job.Status.Conditions, 1)
	require.NotNil(t, job.Status.Conditions[0].AnsibleResult)
	assert.Equal(t, 3, job.Status.Conditions[0].AnsibleResult.OK)

	assert.Equal(t, "failed", jobs[post].Status.AnsibleJobResult.Status)
}

func TestJobsEmpty(t *testing.T) {
	jobs, err := NewLookup(newFakeClient(), nil).Jobs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestJobsListFailure(t *testing.T) {
	client := newFakeClient()
	client.PrependReactor("list", "ansiblejobs", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("forbidden")
	})
	l := NewLookup(client, zaptest.NewLogger(t))

	_, err := l.Jobs(context.Background(), []types.NamespacedName{{Namespace: "hooks", Name: "prehook"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
}

func TestJobsPartialFailure(t *testing.T) {
	client := newFakeClient(ansibleJob("hooks", "prehook-abc", "successful"))
	client.PrependReactor("list", "ansiblejobs", func(a k8stesting.Action) (bool, runtime.Object, error) {
		if a.GetNamespace() == "locked" {
			return true, nil, errors.New("forbidden")
		}
		return false, nil, nil
	})
	l := NewLookup(client, zaptest.NewLogger(t))

	pre := types.NamespacedName{Namespace: "hooks", Name: "prehook-abc"}
	jobs, err := l.Jobs(context.Background(), []types.NamespacedName{pre, {Namespace: "locked", Name: "posthook"}})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.NotNil(t, jobs[pre])
}
