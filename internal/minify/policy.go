// Package minify implements the two-pass minification policy applied to each
// finished bundle.
//
// The semantic pass runs first and never renames identifiers: it drops
// unused bindings of calls to the purity whitelist, matched by exact name,
// marks the remaining calls and lets the minifier drop the ones whose results
// are unused. Only then does the syntactic pass rename
// identifiers. Reversing the order would rename the helpers before the
// whitelist could match them.
package minify

import (
	"context"
	"errors"
	"fmt"
)

// PureFuncs are the curried-call helpers the Elm compiler emits. They are
// side-effect free by construction, so calls whose results are unused may be
// removed. Must be kept in sync with the upstream Elm compiler's generated
// helper names (https://elm-lang.org/0.19.0/optimize).
var PureFuncs = []string{
	"F2", "F3", "F4", "F5", "F6", "F7", "F8", "F9",
	"A2", "A3", "A4", "A5", "A6", "A7", "A8", "A9",
}

// ErrInvalidPolicy is returned by Validate.
var ErrInvalidPolicy = errors.New("invalid minification policy")

// SemanticPass is the first, elimination-only pass.
type SemanticPass struct {
	// Mangle must stay false: later stages still reference original names.
	Mangle bool
	// PureFuncs are trusted, not proven, to be side-effect free.
	PureFuncs []string
	// PureGetters treats every property read as side-effect free.
	PureGetters bool
	// KeepFargs keeps unused trailing function parameters.
	KeepFargs bool
	// UnsafeComps allows comparison rewrites only valid for compiled Elm.
	UnsafeComps bool
	// Unsafe enables the broadest assumption-based simplifications.
	Unsafe bool
	// Comments keeps comments in the output.
	Comments bool
}

// SyntacticPass is the second, renaming pass.
type SyntacticPass struct {
	Mangle   bool
	Comments bool
}

// Policy is the ordered pair of passes.
type Policy struct {
	Semantic  SemanticPass
	Syntactic SyntacticPass
}

// DefaultPolicy is the production policy of the site build.
func DefaultPolicy() Policy {
	return Policy{
		Semantic: SemanticPass{
			Mangle:      false,
			PureFuncs:   append([]string(nil), PureFuncs...),
			PureGetters: true,
			KeepFargs:   false,
			UnsafeComps: true,
			Unsafe:      true,
			Comments:    false,
		},
		Syntactic: SyntacticPass{
			Mangle:   true,
			Comments: false,
		},
	}
}

// Validate rejects policies that would rename before elimination finishes.
func (p Policy) Validate() error {
	if p.Semantic.Mangle {
		return fmt.Errorf("%w: semantic pass must not mangle identifiers", ErrInvalidPolicy)
	}
	if !p.Syntactic.Mangle {
		return fmt.Errorf("%w: syntactic pass must mangle identifiers", ErrInvalidPolicy)
	}
	return nil
}

// Minifier is the code-size tool the passes delegate to.
type Minifier interface {
	Semantic(ctx context.Context, src []byte, pass SemanticPass) ([]byte, error)
	Syntactic(ctx context.Context, src []byte, pass SyntacticPass) ([]byte, error)
}

// Run applies the semantic pass to completion, then the syntactic pass.
// Minifier errors are returned as-is; there is no fallback to unminified code.
func (p Policy) Run(ctx context.Context, m Minifier, src []byte) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out, err := RunSemantic(ctx, m, src, p.Semantic)
	if err != nil {
		return nil, err
	}
	return RunSyntactic(ctx, m, out, p.Syntactic)
}

// RunSemantic drops dead pure bindings, marks the remaining whitelisted
// calls pure and runs the minifier's elimination pass.
func RunSemantic(ctx context.Context, m Minifier, src []byte, pass SemanticPass) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	marked := MarkPure(Eliminate(src, pass), pass.PureFuncs)
	return m.Semantic(ctx, marked, pass)
}

// RunSyntactic runs the renaming pass.
func RunSyntactic(ctx context.Context, m Minifier, src []byte, pass SyntacticPass) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Syntactic(ctx, src, pass)
}
