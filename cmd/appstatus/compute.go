package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/yaml"

	"github.com/kubilitics/kubilitics-appstatus/internal/config"
	"github.com/kubilitics/kubilitics-appstatus/internal/models"
	"github.com/kubilitics/kubilitics-appstatus/internal/pkg/logger"
	"github.com/kubilitics/kubilitics-appstatus/internal/pkg/validate"
	"github.com/kubilitics/kubilitics-appstatus/internal/search"
	"github.com/kubilitics/kubilitics-appstatus/internal/topology"
)

// Fixture is a recorded refresh: the topology plus what search returned.
type Fixture struct {
	Request       models.TopologyRequest `json:"request"`
	SearchResults []models.SearchResult  `json:"searchResults,omitempty"`
	AnsibleJobs   []models.AnsibleJob    `json:"ansibleJobs,omitempty"`
	// Now pins the clock for subscription time windows.
	Now *time.Time `json:"now,omitempty"`
}

type computeOptions struct {
	file   string
	hub    string
	output string
	live   bool
}

func newComputeCmd() *cobra.Command {
	opts := &computeOptions{}
	cmd := &cobra.Command{
		Use:   "compute -f FILE",
		Short: "Compute node pulses for a topology fixture",
		Long: `Compute the pulse of every node of an application topology.

The fixture (YAML or JSON) holds a request and, unless --live is set, the
recorded search results to correlate:

  request:
    application: {name: shop, namespace: ns}
    nodes: [...]
  searchResults:
    - related: [{kind: Deployment, items: [...]}]

With --live the request is refreshed against the configured search backend.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompute(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "fixture file (- for stdin)")
	cmd.Flags().StringVar(&opts.hub, "hub", "", "hub cluster name (default: fixture value or local-cluster)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "output format: table|json")
	cmd.Flags().BoolVar(&opts.live, "live", false, "query the configured search backend instead of the fixture's results")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runCompute(ctx context.Context, out io.Writer, opts *computeOptions) error {
	if opts.output != "table" && opts.output != "json" {
		return fmt.Errorf("unsupported output %q (table|json)", opts.output)
	}
	fx, err := loadFixture(opts.file)
	if err != nil {
		return err
	}
	req := &fx.Request
	if opts.hub != "" {
		req.HubCluster = opts.hub
	}
	if err := validate.TopologyRequest(req); err != nil {
		return err
	}

	var st *models.TopologyStatus
	if opts.live {
		st, err = computeLive(ctx, req)
		if err != nil {
			return err
		}
	} else {
		engineOpts := topology.Options{}
		if fx.Now != nil {
			now := *fx.Now
			engineOpts.Now = func() time.Time { return now }
		}
		engine := topology.NewEngine(nil, nil, engineOpts, zap.NewNop())
		st = engine.Compute(req, fx.SearchResults, jobIndex(fx.AnsibleJobs))
	}

	if opts.output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	return printTable(out, st)
}

func computeLive(ctx context.Context, req *models.TopologyRequest) (*models.TopologyStatus, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Options{Level: cfg.LogLevel, Format: "console"})
	if err != nil {
		return nil, err
	}
	defer func() { _ = log.Sync() }()

	client, err := search.NewClient(search.ClientConfig{
		URL:             cfg.SearchURL,
		Token:           cfg.SearchToken,
		Timeout:         time.Duration(cfg.SearchTimeoutSec) * time.Second,
		RateLimitPerSec: cfg.SearchRateLimitPerSec,
		RateLimitBurst:  cfg.SearchRateLimitBurst,
		RetryAttempts:   cfg.SearchRetryAttempts,
	}, log)
	if err != nil {
		return nil, err
	}
	hub := req.HubCluster
	if hub == "" {
		hub = cfg.HubClusterName
	}
	engine := topology.NewEngine(client, nil, topology.Options{Hub: hub, MaxItems: cfg.SearchMaxItems}, log)
	return engine.Refresh(ctx, req)
}

func loadFixture(path string) (*Fixture, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &fx, nil
}

func jobIndex(jobs []models.AnsibleJob) map[types.NamespacedName]*models.AnsibleJob {
	if len(jobs) == 0 {
		return nil
	}
	out := make(map[types.NamespacedName]*models.AnsibleJob, len(jobs))
	for i := range jobs {
		out[types.NamespacedName{Namespace: jobs[i].Namespace, Name: jobs[i].Name}] = &jobs[i]
	}
	return out
}

func printTable(out io.Writer, st *models.TopologyStatus) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tNAME\tNAMESPACE\tPULSE\tREASON\tCLUSTERS\tRESOURCES")
	for _, n := range st.Nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			n.Node.Type,
			n.Node.Name,
			dash(n.Node.Namespace),
			n.Status.Pulse,
			dash(n.Status.Reason),
			dash(strings.Join(n.Status.OnlineClusters, ",")),
			len(n.Resources))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if st.Channel != "" {
		fmt.Fprintf(out, "\nChannel: %s\n", st.Channel)
	}
	for _, w := range st.Warnings {
		fmt.Fprintf(out, "Warning: %s\n", w)
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
