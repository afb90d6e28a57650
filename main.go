package main

import (
	"context"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	githubql "github.com/shurcooL/githubv4"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/dependency-check/checker"
	"github.com/aquasecurity/dependency-check/dependency"
	"github.com/aquasecurity/dependency-check/github"
	"github.com/aquasecurity/dependency-check/nvd"
	"github.com/aquasecurity/dependency-check/utils"
)

const concurrency = 5

type flags struct {
	dependencies    string
	config          string
	output          string
	releases        bool
	limit           int
	metricsTextfile string
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func newRootCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "dependency-check",
		Short:         "Check dependencies for CVEs and newer upstream releases",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.dependencies, "dependencies", "", "dependency locations file (YAML or JSON)")
	cmd.Flags().StringVar(&f.config, "config", "", "CVE scan config (nist_url, start_year, ignored_cves)")
	cmd.Flags().StringVar(&f.output, "output", "", "write the report as JSON to this path")
	cmd.Flags().BoolVar(&f.releases, "releases", false, "also check upstream releases on GitHub (GITHUB_TOKEN)")
	cmd.Flags().IntVar(&f.limit, "limit", concurrency, "maximum concurrent downloads")
	cmd.Flags().StringVar(&f.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file")
	_ = cmd.MarkFlagRequired("dependencies")
	return cmd
}

func run(ctx context.Context, f flags) error {
	appFs := afero.NewOsFs()

	var gc dependency.GithubClient
	if f.releases {
		token := utils.LookupEnv("GITHUB_TOKEN", "")
		gc = github.NewClient(githubql.NewClient(github.NewHTTPClient(ctx, token)))
	}

	deps, err := dependency.Load(appFs, f.dependencies, gc)
	if err != nil {
		return xerrors.Errorf("dependency load error: %w", err)
	}
	log.Printf("Checking %d dependencies", len(deps))

	tracked := make([]nvd.Tracked, 0, len(deps))
	for _, d := range deps {
		tracked = append(tracked, d)
	}
	feed := nvd.NewFeed(tracked,
		nvd.WithFs(appFs),
		nvd.WithConfigPath(f.config),
		nvd.WithLimit(f.limit),
	)

	report, err := checker.New(deps, feed, checker.WithReleases(f.releases)).Run(ctx)
	if err != nil {
		return xerrors.Errorf("check error: %w", err)
	}
	for _, finding := range report.Vulnerable() {
		for _, cve := range finding.CVEs {
			log.Printf("%s@%s: %s (%s)", finding.ID, finding.Version, cve.ID, cve.Severity)
		}
	}

	if f.output != "" {
		if err = report.Write(utils.NewFs(appFs), f.output); err != nil {
			return err
		}
	}
	if f.metricsTextfile != "" {
		if err = prometheus.WriteToTextfile(f.metricsTextfile, prometheus.DefaultGatherer); err != nil {
			return xerrors.Errorf("unable to write metrics: %w", err)
		}
	}
	return nil
}
