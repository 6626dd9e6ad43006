// Package ansible resolves the AnsibleJob objects behind subscription pre/post hooks.
package ansible

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
)

// JobLookup finds AnsibleJobs by name and namespace. *Lookup implements it.
type JobLookup interface {
	Jobs(ctx context.Context, refs []types.NamespacedName) (map[types.NamespacedName]*models.AnsibleJob, error)
}

// Lookup lists AnsibleJobs through the dynamic client.
type Lookup struct {
	client dynamic.Interface
	log    *zap.Logger
}

// NewLookup returns a lookup over client.
func NewLookup(client dynamic.Interface, log *zap.Logger) *Lookup {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lookup{client: client, log: log.Named("ansible")}
}

// Jobs returns the jobs named by refs that exist. Namespaces are listed
// concurrently, once each. A namespace that cannot be listed is logged and
// skipped; the error is returned only when every namespace failed.
func (l *Lookup) Jobs(ctx context.Context, refs []types.NamespacedName) (map[types.NamespacedName]*models.AnsibleJob, error) {
	wanted := make(map[string]map[string]bool)
	for _, ref := range refs {
		if ref.Name == "" {
			continue
		}
		if wanted[ref.Namespace] == nil {
			wanted[ref.Namespace] = make(map[string]bool)
		}
		wanted[ref.Namespace][ref.Name] = true
	}
	namespaces := make([]string, 0, len(wanted))
	for ns := range wanted {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	var (
		mu       sync.Mutex
		out      = make(map[types.NamespacedName]*models.AnsibleJob)
		failures int
	)
	var g errgroup.Group
	for _, ns := range namespaces {
		g.Go(func() error {
			jobs, err := l.list(ctx, ns)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				l.log.Warn("ansiblejob lookup failed", zap.String("namespace", ns), zap.Error(err))
				return err
			}
			for _, job := range jobs {
				if wanted[ns][job.Name] {
					out[types.NamespacedName{Namespace: ns, Name: job.Name}] = job
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && failures == len(namespaces) {
		return out, err
	}
	return out, nil
}

func (l *Lookup) list(ctx context.Context, namespace string) ([]*models.AnsibleJob, error) {
	list, err := l.client.Resource(models.AnsibleJobGVR).Namespace(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list ansiblejobs in %q: %w", namespace, err)
	}
	jobs := make([]*models.AnsibleJob, 0, len(list.Items))
	for i := range list.Items {
		var job models.AnsibleJob
		if err := runtime.DefaultUnstructuredConverter.FromUnstructured(list.Items[i].Object, &job); err != nil {
			l.log.Debug("skipping malformed ansiblejob",
				zap.String("namespace", namespace),
				zap.String("name", list.Items[i].GetName()),
				zap.Error(err))
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}
