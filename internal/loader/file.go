package loader

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"mime"
	"path/filepath"
)

// defaultFileName matches file-loader's default output name.
const defaultFileName = "[hash].[ext]"

// fileStep copies the raw bytes to the output directory and exports the
// emitted file name.
type fileStep struct {
	emitter *Emitter
}

func (s fileStep) Apply(ctx context.Context, a *Asset, opts Options, next Next) error {
	name := InterpolateName(opts.String("name", defaultFileName), a.Path, a.Source)
	if err := s.emitter.Emit(name, a.Source); err != nil {
		return err
	}
	a.Contents = exportString(opts.String("publicPath", "") + name)
	return next(ctx, a)
}

// urlStep inlines small files as data URIs and hands larger ones to file.
type urlStep struct {
	file fileStep
}

func (s urlStep) Apply(ctx context.Context, a *Asset, opts Options, next Next) error {
	limit := opts.Int("limit", -1)
	// The limit compares raw bytes before encoding and is inclusive.
	if limit >= 0 && len(a.Source) > limit {
		return s.file.Apply(ctx, a, opts, next)
	}
	mimetype := opts.String("mimetype", "")
	if mimetype == "" {
		mimetype = mime.TypeByExtension(filepath.Ext(a.Path))
	}
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}
	a.Contents = exportString("data:" + mimetype + ";base64," + base64.StdEncoding.EncodeToString(a.Source))
	return next(ctx, a)
}

// exportString renders a CommonJS module exporting s.
func exportString(s string) string {
	return "module.exports = " + jsString(s) + ";\n"
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
