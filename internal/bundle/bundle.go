// Package bundle builds each configured entry into one output file: it
// drives the build graph traversal, transforms every module through its
// classified chain, concatenates the result, runs the minification policy
// and assembles the output artifacts.
//
// A build is all-or-nothing: artifacts live in memory until Commit, and any
// failing step aborts the whole build before anything is written.
package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	gzip "github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/vesaa/sitepack/internal/classify"
	"github.com/vesaa/sitepack/internal/config"
	"github.com/vesaa/sitepack/internal/loader"
	"github.com/vesaa/sitepack/internal/minify"
)

// Options configure a Builder.
type Options struct {
	// Context is the absolute directory entry modules resolve against.
	Context string
	// Entries maps entry names to their modules, in order.
	Entries map[string][]string
	// OutDir is the absolute output directory.
	OutDir string
	// Filename is the output name template; [name] is the entry name.
	Filename string

	Rules    classify.Rules
	Unparsed classify.Unparsed
	Compiler loader.ElmCompiler

	Minify   bool
	Policy   minify.Policy
	Minifier minify.Minifier

	// Gzip adds a precompressed .gz artifact for every bundle.
	Gzip bool
}

// OutputArtifact is one file produced by a build.
type OutputArtifact struct {
	// Entry is the entry name for bundles, empty for emitted assets.
	Entry    string
	Name     string
	Path     string
	Contents []byte
	Hash     string
}

// Result is the outcome of a successful build.
type Result struct {
	Artifacts []OutputArtifact
	// Modules counts the modules bundled across all entries.
	Modules   int
	Externals []string
	Warnings  []string
	Duration  time.Duration
}

// Bundles returns only the entry bundles.
func (r *Result) Bundles() []OutputArtifact {
	var out []OutputArtifact
	for _, a := range r.Artifacts {
		if a.Entry != "" && !strings.HasSuffix(a.Name, ".gz") {
			out = append(out, a)
		}
	}
	return out
}

// Builder runs builds. Builds are serialized; a Builder is safe for
// concurrent use by the CLI and the dev server watcher.
type Builder struct {
	opts     Options
	emitter  *loader.Emitter
	registry *loader.Registry
	log      zerolog.Logger

	mu sync.Mutex
}

// New validates opts and returns a Builder.
func New(opts Options, log zerolog.Logger) (*Builder, error) {
	if !filepath.IsAbs(opts.Context) || !filepath.IsAbs(opts.OutDir) {
		return nil, fmt.Errorf("bundle: context and output directories must be absolute")
	}
	if len(opts.Entries) == 0 {
		return nil, fmt.Errorf("bundle: no entries")
	}
	if !strings.Contains(opts.Filename, "[name]") {
		return nil, fmt.Errorf("bundle: filename template %q lacks [name]", opts.Filename)
	}
	if opts.Minify {
		if opts.Minifier == nil {
			return nil, fmt.Errorf("bundle: minification enabled without a minifier")
		}
		if err := opts.Policy.Validate(); err != nil {
			return nil, err
		}
	}

	emitter := loader.NewEmitter()
	registry := loader.NewRegistry(emitter, opts.Compiler)
	if err := registry.Validate(opts.Rules); err != nil {
		return nil, err
	}
	return &Builder{opts: opts, emitter: emitter, registry: registry, log: log}, nil
}

// FromConfig assembles a Builder from the loaded configuration.
func FromConfig(cfg *config.Config, log zerolog.Logger) (*Builder, error) {
	ctxDir, err := filepath.Abs(cfg.Context)
	if err != nil {
		return nil, err
	}
	outDir := cfg.Output.Path
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(ctxDir, outDir)
	}

	rules := classify.DefaultRules()
	if len(cfg.Rules) > 0 {
		if rules, err = classify.CompileRules(cfg.Rules); err != nil {
			return nil, err
		}
	}
	unparsed, err := classify.CompileUnparsed(cfg.NoParse)
	if err != nil {
		return nil, err
	}

	return New(Options{
		Context:  ctxDir,
		Entries:  cfg.Entry,
		OutDir:   filepath.Clean(outDir),
		Filename: cfg.Output.Filename,
		Rules:    rules,
		Unparsed: unparsed,
		Compiler: loader.NewExecCompiler(cfg.ElmBinary),
		Minify:   cfg.Minify,
		Policy:   minify.DefaultPolicy(),
		Minifier: minify.NewEsbuild(log),
		Gzip:     cfg.Output.Gzip,
	}, log)
}

// Options returns the builder's configuration.
func (b *Builder) Options() Options {
	return b.opts
}

// Build bundles every entry and returns the artifacts without writing them.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	b.emitter.Reset()

	names := make([]string, 0, len(b.opts.Entries))
	for name := range b.opts.Entries {
		names = append(names, name)
	}
	sort.Strings(names)

	res := &Result{}
	externals := map[string]bool{}
	for _, name := range names {
		code, meta, warnings, err := b.bundleEntry(ctx, name, b.opts.Entries[name])
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", name, err)
		}
		res.Warnings = append(res.Warnings, warnings...)
		res.Modules += meta.ModuleCount()
		for _, e := range meta.Externals() {
			externals[e] = true
		}

		if b.opts.Minify {
			before := len(code)
			if code, err = b.opts.Policy.Run(ctx, b.opts.Minifier, code); err != nil {
				return nil, fmt.Errorf("entry %q: minify: %w", name, err)
			}
			b.log.Debug().Str("entry", name).Int("before", before).Int("after", len(code)).Msg("[minify] done")
		}

		res.Artifacts = append(res.Artifacts, b.artifact(name, OutputName(b.opts.Filename, name), code))
	}

	for _, f := range b.emitter.Files() {
		res.Artifacts = append(res.Artifacts, b.artifact("", f.Name, f.Contents))
	}

	if b.opts.Gzip {
		for _, a := range res.Bundles() {
			gz, err := gzipBytes(a.Contents)
			if err != nil {
				return nil, fmt.Errorf("gzip %s: %w", a.Name, err)
			}
			res.Artifacts = append(res.Artifacts, b.artifact(a.Entry, a.Name+".gz", gz))
		}
	}

	if err := checkNames(res.Artifacts); err != nil {
		return nil, err
	}

	for e := range externals {
		res.Externals = append(res.Externals, e)
	}
	sort.Strings(res.Externals)
	res.Duration = time.Since(start)
	return res, nil
}

// bundleEntry runs the bundler for a single entry and returns the
// concatenated, unminified code.
func (b *Builder) bundleEntry(ctx context.Context, name string, modules []string) ([]byte, *Metafile, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}
	result := api.Build(api.BuildOptions{
		EntryPointsAdvanced: []api.EntryPoint{{
			InputPath:  entryNamespace + ":" + name,
			OutputPath: name,
		}},
		Bundle:        true,
		Write:         false,
		Outdir:        b.opts.OutDir,
		AbsWorkingDir: b.opts.Context,
		Format:        api.FormatIIFE,
		Platform:      api.PlatformBrowser,
		LogLevel:      api.LogLevelSilent,
		Metafile:      true,
		Charset:       api.CharsetUTF8,
		Plugins:       []api.Plugin{b.plugin(ctx, name, modules)},
	})
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}
	if len(result.Errors) > 0 {
		return nil, nil, nil, errors.New(minify.MessagesText(result.Errors))
	}

	var code []byte
	for _, f := range result.OutputFiles {
		if strings.HasSuffix(f.Path, ".js") {
			code = f.Contents
			break
		}
	}
	if code == nil {
		return nil, nil, nil, fmt.Errorf("bundler produced no JavaScript output")
	}

	meta, err := ParseMetafile(result.Metafile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read metafile: %w", err)
	}

	var warnings []string
	if len(result.Warnings) > 0 {
		warnings = append(warnings, strings.Split(minify.MessagesText(result.Warnings), "\n")...)
	}
	return code, meta, warnings, nil
}

func (b *Builder) artifact(entry, name string, contents []byte) OutputArtifact {
	return OutputArtifact{
		Entry:    entry,
		Name:     name,
		Path:     filepath.Join(b.opts.OutDir, name),
		Contents: contents,
		Hash:     loader.ContentHash(contents),
	}
}

// OutputName substitutes the entry name into the filename template.
func OutputName(template, entry string) string {
	return strings.ReplaceAll(template, "[name]", entry)
}

// checkNames rejects two artifacts claiming one output file.
func checkNames(artifacts []OutputArtifact) error {
	seen := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		if seen[a.Name] {
			return fmt.Errorf("bundle: more than one artifact named %q", a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
