package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/git-pkgs/upmbridge"
	_ "github.com/git-pkgs/upmbridge/all"
	"github.com/git-pkgs/upmbridge/config"
	"github.com/git-pkgs/upmbridge/fetch"
)

// flags holds the global flags shared by every subcommand.
type flags struct {
	configPath string
	repository string
	framework  string
	output     string
	describe   bool
	jobs       int
}

func buildRootCommand() *cobra.Command {
	f := &flags{}
	//nolint:exhaustruct // Minimal Command initialization with required fields only
	cmd := &cobra.Command{
		Use:   "upmbridge",
		Short: "Bridge NuGet packages into a UPM registry",
		Long: `Resolves the transitive closure of a set of NuGet packages for one target
framework, derives the version of the local package from its git tags and
downloads the resolved .nupkg files for repackaging.

Usage modes:
  upmbridge plan              Print the version and the resolved packages
  upmbridge download          Download every resolved package
  upmbridge version           Print the version derived from git history`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "",
		"Path to config file (default: auto-detect)")
	cmd.PersistentFlags().StringVarP(&f.repository, "repository", "r", "",
		"Path to the git repository the version is derived from")
	cmd.PersistentFlags().StringVarP(&f.framework, "framework", "f", "",
		"Target framework (e.g. netstandard2.0, net472, net6.0)")

	download := newDownloadCommand(f)
	download.Flags().StringVarP(&f.output, "output", "o", "",
		"Directory the .nupkg files are written to")
	download.Flags().IntVarP(&f.jobs, "jobs", "j", 8,
		"Number of packages downloaded at the same time")

	plan := newPlanCommand(f)
	plan.Flags().BoolVarP(&f.describe, "describe", "d", false,
		"Fetch and print the description of every resolved package")

	cmd.AddCommand(plan, download, newVersionCommand(f))
	return cmd
}

// load reads the configuration and applies flag overrides. Without a config
// file, commands that need no packages run on the defaults.
func (f *flags) load(requirePackages bool) (*config.Config, error) {
	path := f.configPath
	if path == "" {
		found, err := config.FindConfigFile()
		if err != nil && requirePackages {
			return nil, err
		}
		path = found
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		logger.Debugf("Loaded config from %q", path)
		cfg = loaded
	}

	if f.repository != "" {
		cfg.Repository = f.repository
	}
	if f.framework != "" {
		cfg.TargetFramework = f.framework
	}
	if f.output != "" {
		cfg.Output = f.output
	}
	return cfg, nil
}

func newPlanCommand(f *flags) *cobra.Command {
	//nolint:exhaustruct // Minimal Command initialization with required fields only
	return &cobra.Command{
		Use:   "plan",
		Short: "Resolve the package closure and the source version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(true)
			if err != nil {
				return err
			}
			target, err := cfg.Framework()
			if err != nil {
				return err
			}
			bridge, _, err := injectBridge(cfg)
			if err != nil {
				return err
			}

			plan, err := bridge.Plan(cmd.Context(), cfg.Roots(), target)
			if err != nil {
				return err
			}
			if f.describe {
				if err := bridge.Describe(cmd.Context(), plan); err != nil {
					return err
				}
			}
			printPlan(cmd.OutOrStdout(), plan, f.describe)
			return nil
		},
	}
}

func newDownloadCommand(f *flags) *cobra.Command {
	//nolint:exhaustruct // Minimal Command initialization with required fields only
	return &cobra.Command{
		Use:   "download",
		Short: "Download the .nupkg of every resolved package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(true)
			if err != nil {
				return err
			}
			target, err := cfg.Framework()
			if err != nil {
				return err
			}
			bridge, fetcher, err := injectBridge(cfg)
			if err != nil {
				return err
			}

			plan, err := bridge.Plan(cmd.Context(), cfg.Roots(), target)
			if err != nil {
				return err
			}
			files, err := bridge.Download(cmd.Context(), plan, cfg.Output, fetcher, fetch.WithConcurrency(f.jobs))
			if err != nil {
				if open := fetcher.OpenBreakers(); len(open) > 0 {
					logger.Warnf("Gave up on %s after repeated failures", strings.Join(open, ", "))
				}
				return err
			}
			kept := 0
			for _, file := range files {
				if file.Skipped {
					kept++
				}
				logger.Debugf("%s (%d bytes, kept: %t)", file.Path, file.Size, file.Skipped)
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), file.Path)
			}
			logger.Infof("Downloaded %d packages to %q, %d already present", len(files)-kept, cfg.Output, kept)
			return nil
		},
	}
}

func newVersionCommand(f *flags) *cobra.Command {
	//nolint:exhaustruct // Minimal Command initialization with required fields only
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version derived from git history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(false)
			if err != nil {
				return err
			}
			bridge, _, err := injectBridge(cfg)
			if err != nil {
				return err
			}

			res, err := bridge.Version()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Version)
			logger.Debugf("Version %s from tag %q on %s (%s)", res.Version, res.Tag, res.Commit, res.LastVersionChangeWhen)
			return nil
		},
	}
}

func printPlan(w io.Writer, plan *upmbridge.Plan, describe bool) {
	_, _ = fmt.Fprintf(w, "version: %s\n", plan.Version.Version)
	if plan.Version.Tag != "" {
		_, _ = fmt.Fprintf(w, "tag: %s (%s)\n", plan.Version.Tag, plan.Version.LastVersionChangeWhen.Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "framework: %s\n\n", plan.Target)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if describe {
		_, _ = fmt.Fprintln(tw, "PACKAGE\tVERSION\tPURL\tDESCRIPTION")
		for _, pkg := range plan.Packages {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", pkg.ID, pkg.Version, pkg.PURL, summary(pkg.Description))
		}
	} else {
		_, _ = fmt.Fprintln(tw, "PACKAGE\tVERSION\tPURL\tDOWNLOAD")
		for _, pkg := range plan.Packages {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", pkg.ID, pkg.Version, pkg.PURL, pkg.DownloadURL)
		}
	}
	_ = tw.Flush()
}

const maxSummary = 72

// summary folds a package description onto one line of bounded width.
func summary(description string) string {
	s := strings.Join(strings.Fields(description), " ")
	if r := []rune(s); len(r) > maxSummary {
		s = string(r[:maxSummary-3]) + "..."
	}
	return s
}

func main() {
	//nolint:exhaustruct // Minimal TextFormatter initialization with required fields only
	logger.SetFormatter(&logger.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})
	if os.Getenv("DEBUG") == "true" {
		logger.SetLevel(logger.DebugLevel)
	}

	if err := execute(os.Args[1:]); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Interrupted")
			os.Exit(130)
		}
		logger.Fatalf("Error executing 'upmbridge': %s", err)
	}
}

func execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := buildRootCommand()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}
