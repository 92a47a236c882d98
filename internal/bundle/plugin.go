package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/vesaa/sitepack/internal/loader"
)

const entryNamespace = "sitepack-entry"

// nativeExts are loaded by esbuild itself when no rule selects them.
var nativeExts = map[string]bool{
	".js": true, ".mjs": true, ".cjs": true, ".jsx": true,
	".ts": true, ".mts": true, ".cts": true, ".tsx": true,
	".json": true,
}

func isEntryPath(p string) bool {
	return strings.HasPrefix(p, entryNamespace+":")
}

// plugin hooks the build graph traversal: every file the bundler loads is
// classified and transformed through its chain; imports inside unparsed
// resources are left unresolved.
func (b *Builder) plugin(ctx context.Context, entry string, modules []string) api.Plugin {
	return api.Plugin{
		Name: "sitepack",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + entryNamespace + ":"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{Path: entry, Namespace: entryNamespace}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: entryNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					var sb strings.Builder
					for _, m := range modules {
						fmt.Fprintf(&sb, "import %q;\n", m)
					}
					contents := sb.String()
					return api.OnLoadResult{
						Contents:   &contents,
						ResolveDir: b.opts.Context,
						Loader:     api.LoaderJS,
					}, nil
				})

			build.OnResolve(api.OnResolveOptions{Filter: ".*"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Namespace == "file" && args.Importer != "" && b.opts.Unparsed.Contains(args.Importer) {
						return api.OnResolveResult{Path: args.Path, External: true}, nil
					}
					return api.OnResolveResult{}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					return b.load(ctx, args)
				})
		},
	}
}

// load classifies one file and runs its chain. Files no rule selects are
// passed through: code goes to the bundler's own loaders, anything else is
// bundled as opaque bytes.
func (b *Builder) load(ctx context.Context, args api.OnLoadArgs) (api.OnLoadResult, error) {
	if err := ctx.Err(); err != nil {
		return api.OnLoadResult{}, err
	}
	resource := args.Path + args.Suffix
	chain, ok := b.opts.Rules.Select(resource)
	if !ok {
		if nativeExts[strings.ToLower(filepath.Ext(args.Path))] {
			return api.OnLoadResult{}, nil
		}
		src, err := os.ReadFile(args.Path)
		if err != nil {
			return api.OnLoadResult{}, err
		}
		contents := string(src)
		b.log.Debug().Str("file", b.rel(args.Path)).Msg("[bundle] passthrough")
		return api.OnLoadResult{Contents: &contents, Loader: api.LoaderBinary}, nil
	}

	src, err := os.ReadFile(args.Path)
	if err != nil {
		return api.OnLoadResult{}, err
	}
	a := &loader.Asset{Path: args.Path, Suffix: args.Suffix, Source: src}
	if err := b.registry.Run(ctx, chain, a); err != nil {
		return api.OnLoadResult{}, err
	}
	b.log.Debug().Str("file", b.rel(resource)).Strs("chain", chain.Names()).Msg("[bundle] transformed")
	return api.OnLoadResult{
		Contents:   &a.Contents,
		ResolveDir: filepath.Dir(args.Path),
		Loader:     api.LoaderJS,
	}, nil
}

func (b *Builder) rel(path string) string {
	if r, err := filepath.Rel(b.opts.Context, path); err == nil {
		return filepath.ToSlash(r)
	}
	return path
}
