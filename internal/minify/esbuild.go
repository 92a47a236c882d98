package minify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
)

// Esbuild runs both passes through esbuild's transform API.
type Esbuild struct {
	Log zerolog.Logger
}

// NewEsbuild returns an esbuild-backed Minifier.
func NewEsbuild(log zerolog.Logger) *Esbuild {
	return &Esbuild{Log: log}
}

// Semantic removes dead code, including unused calls annotated pure,
// without renaming anything. Binding elimination and the getter, argument
// and operator options are applied by Eliminate before esbuild runs.
func (e *Esbuild) Semantic(ctx context.Context, src []byte, pass SemanticPass) ([]byte, error) {
	opts := api.TransformOptions{
		Loader:            api.LoaderJS,
		MinifySyntax:      true,
		MinifyWhitespace:  true,
		MinifyIdentifiers: pass.Mangle,
		Pure:              pass.PureFuncs,
		LegalComments:     legalComments(pass.Comments),
		Charset:           api.CharsetUTF8,
	}
	out, err := transform(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	e.Log.Debug().Int("in", len(src)).Int("out", len(out)).Msg("[minify] semantic pass")
	return out, nil
}

// Syntactic renames identifiers and strips what is left of the comments,
// including purity annotations the first pass kept.
func (e *Esbuild) Syntactic(ctx context.Context, src []byte, pass SyntacticPass) ([]byte, error) {
	opts := api.TransformOptions{
		Loader:            api.LoaderJS,
		MinifyWhitespace:  true,
		MinifyIdentifiers: pass.Mangle,
		IgnoreAnnotations: !pass.Comments,
		LegalComments:     legalComments(pass.Comments),
		Charset:           api.CharsetUTF8,
	}
	return transform(ctx, src, opts)
}

func legalComments(keep bool) api.LegalComments {
	if keep {
		return api.LegalCommentsInline
	}
	return api.LegalCommentsNone
}

func transform(ctx context.Context, src []byte, opts api.TransformOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := api.Transform(string(src), opts)
	if len(res.Errors) > 0 {
		return nil, messagesError(res.Errors)
	}
	return res.Code, nil
}

// messagesError joins esbuild diagnostics into one error, keeping locations.
func messagesError(msgs []api.Message) error {
	errs := make([]error, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			errs = append(errs, fmt.Errorf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text))
		} else {
			errs = append(errs, errors.New(m.Text))
		}
	}
	return errors.Join(errs...)
}

// MessagesText renders esbuild messages the way the CLI prints them.
func MessagesText(msgs []api.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			lines = append(lines, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
		} else {
			lines = append(lines, m.Text)
		}
	}
	return strings.Join(lines, "\n")
}
