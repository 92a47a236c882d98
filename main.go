// sitepack — Asset pipeline and live-reload dev server for Elm sites.
// Author: vesaa | License: MIT | https://github.com/vesaa/sitepack

// sitepack builds and serves an Elm single-page site: it classifies every
// asset through a rule table, bundles the entry modules into one script,
// minifies it with a two-pass policy and serves the result with live reload.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vesaa/sitepack/internal/bundle"
	"github.com/vesaa/sitepack/internal/classify"
	"github.com/vesaa/sitepack/internal/codegen"
	"github.com/vesaa/sitepack/internal/config"
	"github.com/vesaa/sitepack/internal/logging"
	"github.com/vesaa/sitepack/internal/server"
	"github.com/vesaa/sitepack/internal/stats"
	"github.com/vesaa/sitepack/webui"
)

const version = "v0.1.0"

func printBanner(mode string) {
	fmt.Printf("\n  ► sitepack %s  |  Mode: %s\n\n", version, mode)
}

type app struct {
	configFile string
	verbose    bool
}

func (a *app) load() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Colors:  cfg.DevServer.Colors,
		Verbose: a.verbose,
	})
	return cfg, log, nil
}

// openStore opens the history database; history is best effort, so a
// failure is logged and nil returned.
func openStore(cfg *config.Config, log zerolog.Logger) *server.Store {
	if cfg.DBPath == "" {
		return nil
	}
	store, err := server.OpenStore(cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("[db] build history disabled")
		return nil
	}
	return store
}

func newCollector(log zerolog.Logger) *stats.Collector {
	c, err := stats.NewCollector()
	if err != nil {
		log.Debug().Err(err).Msg("[stats] unavailable")
		return nil
	}
	return c
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:   "sitepack",
		Short: "sitepack — asset pipeline and dev server for Elm sites",
		Long: `sitepack bundles an Elm single-page site: stylesheets are injected at
runtime, fonts are inlined or copied, Elm modules are compiled, and the
bundle is minified in two passes so unused curried helpers are dropped.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Config file (default ./sitepack.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Debug logging")

	root.AddCommand(
		a.buildCmd(),
		a.serveCmd(),
		a.classifyCmd(),
		a.generateCmd(),
		a.historyCmd(),
		initCmd(),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// ── build ─────────────────────────────────────────────────────────────────────

func (a *app) buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Bundle every entry and write the output directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			// CLI flags override config values.
			if noMin, _ := cmd.Flags().GetBool("no-minify"); noMin {
				cfg.Minify = false
			}
			if out, _ := cmd.Flags().GetString("out"); out != "" {
				cfg.Output.Path = out
			}
			if gz, _ := cmd.Flags().GetBool("gzip"); gz {
				cfg.Output.Gzip = true
			}

			b, err := bundle.FromConfig(cfg, log)
			if err != nil {
				return err
			}
			store := openStore(cfg, log)
			if store != nil {
				defer store.Close()
			}
			collector := newCollector(log)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			started := time.Now()
			res, err := b.Build(ctx)
			if err == nil {
				if err = bundle.Commit(b.Options().OutDir, res); err != nil {
					res = nil
				}
			}
			var snap *stats.Snapshot
			if collector != nil {
				snap = collector.Collect()
			}
			if store != nil {
				if _, rerr := store.RecordBuild("cli", started, res, err, snap); rerr != nil {
					log.Warn().Err(rerr).Msg("[db] recording build failed")
				}
			}
			if err != nil {
				return fmt.Errorf("build failed: %w", err)
			}

			for _, w := range res.Warnings {
				log.Warn().Msg("[bundle] " + w)
			}
			for _, art := range res.Artifacts {
				fmt.Printf("  ✓ %-32s %8d bytes\n", art.Name, len(art.Contents))
			}
			summary := fmt.Sprintf("  → %d modules in %s", res.Modules, res.Duration.Round(time.Millisecond))
			if snap != nil {
				summary += fmt.Sprintf(", %d MiB RSS", snap.RSSMegabytes())
			}
			fmt.Println(summary)
			if len(res.Externals) > 0 {
				log.Debug().Strs("externals", res.Externals).Msg("[bundle] left unresolved")
			}
			return nil
		},
	}
	cmd.Flags().Bool("no-minify", false, "Skip minification (development build)")
	cmd.Flags().String("out", "", "Output directory (overrides output.path)")
	cmd.Flags().Bool("gzip", false, "Write precompressed .gz bundles")
	return cmd
}

// ── serve ─────────────────────────────────────────────────────────────────────

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build, watch for changes and serve the site with live reload",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("SERVE")

			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			if host, _ := cmd.Flags().GetString("host"); host != "" {
				cfg.DevServer.Host = host
			}
			if port, _ := cmd.Flags().GetInt("port"); port != 0 {
				cfg.DevServer.Port = port
			}
			if noInline, _ := cmd.Flags().GetBool("no-inline"); noInline {
				cfg.DevServer.Inline = false
			}
			if prod, _ := cmd.Flags().GetBool("minify"); !prod {
				cfg.Minify = false
			}

			b, err := bundle.FromConfig(cfg, log)
			if err != nil {
				return err
			}
			store := openStore(cfg, log)
			if store != nil {
				defer store.Close()
			}

			addr := fmt.Sprintf("%s:%d", cfg.DevServer.Host, cfg.DevServer.Port)
			srv := server.New(server.Options{
				Addr:     addr,
				Inline:   cfg.DevServer.Inline,
				Debounce: time.Duration(cfg.DevServer.DebounceMillis) * time.Millisecond,
				DBPath:   cfg.DBPath,
			}, b, store, newCollector(log), log)

			fmt.Printf("  ✓ Serving %s → http://%s\n", srv.OutDir(), addr)
			if cfg.DevServer.Inline {
				fmt.Printf("  ✓ Live reload enabled\n\n")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			err = srv.Run(ctx)
			fmt.Println("\n  → Shutting down gracefully…")
			return err
		},
	}
	cmd.Flags().String("host", "", "Listen host (overrides devserver.host)")
	cmd.Flags().Int("port", 0, "Listen port (overrides devserver.port)")
	cmd.Flags().Bool("no-inline", false, "Don't inject the live-reload client")
	cmd.Flags().Bool("minify", false, "Minify while serving")
	return cmd
}

// ── classify ──────────────────────────────────────────────────────────────────

func (a *app) classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <path>...",
		Short: "Print the transform chain selected for each path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.load()
			if err != nil {
				return err
			}
			rules := classify.DefaultRules()
			if len(cfg.Rules) > 0 {
				if rules, err = classify.CompileRules(cfg.Rules); err != nil {
					return err
				}
			}
			unparsed, err := classify.CompileUnparsed(cfg.NoParse)
			if err != nil {
				return err
			}
			for _, p := range args {
				chain, ok := rules.Select(p)
				desc := "passthrough"
				if ok {
					steps := make([]string, len(chain))
					for i, s := range chain {
						steps[i] = s.String()
					}
					desc = strings.Join(steps, " → ")
				}
				if unparsed.Contains(p) {
					desc += "  (imports not resolved)"
				}
				fmt.Printf("%s\t%s\n", p, desc)
			}
			return nil
		},
	}
}

// ── generate ──────────────────────────────────────────────────────────────────

func (a *app) generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate TableData.elm from the course database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("db"); v != "" {
				cfg.Generate.DBPath = v
			}
			if v, _ := cmd.Flags().GetString("template"); v != "" {
				cfg.Generate.Template = v
			}
			if v, _ := cmd.Flags().GetString("out"); v != "" {
				cfg.Generate.Output = v
			}
			n, err := codegen.Generate(cfg.Generate, log)
			if err != nil {
				return err
			}
			fmt.Printf("  ✓ %s: %d courses\n", cfg.Generate.Output, n)
			return nil
		},
	}
	cmd.Flags().String("db", "", "Course database (overrides generate.db_path)")
	cmd.Flags().String("template", "", "Elm template (overrides generate.template)")
	cmd.Flags().String("out", "", "Output file (overrides generate.output)")
	return cmd
}

// ── history ───────────────────────────────────────────────────────────────────

func (a *app) historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent builds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			store, err := server.OpenStore(cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			builds, err := store.ListBuilds(limit)
			if err != nil {
				return err
			}
			if len(builds) == 0 {
				fmt.Println("  no builds recorded")
				return nil
			}
			for _, b := range builds {
				line := fmt.Sprintf("  #%-4d %s  %-6s %-6s %5dms  %3d modules  %d files",
					b.ID, b.StartedAt.Local().Format("2006-01-02 15:04:05"), b.Trigger, b.Status,
					b.DurationMS, b.Modules, len(b.Artifacts))
				if b.Error != "" {
					line += "  " + firstLine(b.Error)
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Number of builds to show")
	return cmd
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

// ── init ──────────────────────────────────────────────────────────────────────

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Scaffold a new site (index.html, bootstrap script, starter Elm module)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			force, _ := cmd.Flags().GetBool("force")
			written, err := webui.Scaffold(dir, force)
			if err != nil {
				return err
			}
			for _, p := range written {
				fmt.Printf("  ✓ %s\n", filepath.Join(dir, filepath.FromSlash(p)))
			}
			fmt.Printf("  → cd %s && sitepack build\n", filepath.Join(dir, "site"))
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite existing files")
	return cmd
}

// ── version ───────────────────────────────────────────────────────────────────

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print sitepack version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sitepack %s\n", version)
		},
	}
}
