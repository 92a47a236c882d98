// Package loader implements the named transform steps a classification chain
// dispatches to.
//
// Every step turns an Asset into a JavaScript module the bundler can link.
// Steps are entered strictly in the order the chain declares them: a step
// transforms the asset and then hands it to the remainder of the chain, while
// a wrapping step (style injection) first obtains the remainder's output and
// wraps it.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/vesaa/sitepack/internal/classify"
)

// ErrUnknownStep is returned when a chain names a step that isn't registered.
var ErrUnknownStep = errors.New("unknown transform step")

// Asset is one resource flowing along a chain.
type Asset struct {
	// Path is the absolute file path, Suffix any query/fragment after it.
	Path   string
	Suffix string
	// Source is the raw file content as read from disk.
	Source []byte
	// Contents is the JavaScript module text produced so far.
	Contents string
}

// Resource is the path plus suffix, as matched by the classifier.
func (a *Asset) Resource() string {
	return a.Path + a.Suffix
}

// Next runs the remainder of the chain.
type Next func(ctx context.Context, a *Asset) error

// Step is a single named transformation.
type Step interface {
	Apply(ctx context.Context, a *Asset, opts Options, next Next) error
}

// StepFunc adapts a function to Step.
type StepFunc func(ctx context.Context, a *Asset, opts Options, next Next) error

// Apply implements Step.
func (f StepFunc) Apply(ctx context.Context, a *Asset, opts Options, next Next) error {
	return f(ctx, a, opts, next)
}

// Options are the per-step options declared in a rule.
type Options map[string]any

// String returns the option as a string, or def when unset.
func (o Options) String(key, def string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	return fmt.Sprint(v)
}

// Int returns the option as an int, or def when unset or not numeric.
func (o Options) Int(key string, def int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Bool returns the option as a bool, or def when unset.
func (o Options) Bool(key string, def bool) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Registry maps step names to implementations.
type Registry struct {
	steps map[string]Step
}

// NewRegistry returns a registry with the built-in steps. Emitted files go
// to emitter; Elm sources compile through compiler.
func NewRegistry(emitter *Emitter, compiler ElmCompiler) *Registry {
	r := &Registry{steps: make(map[string]Step)}
	r.Register(classify.StyleLoader, StepFunc(styleStep))
	r.Register(classify.CSSLoader, StepFunc(cssStep))
	r.Register(classify.FileLoader, fileStep{emitter: emitter})
	r.Register(classify.URLLoader, urlStep{file: fileStep{emitter: emitter}})
	r.Register(classify.ElmLoader, elmStep{compiler: compiler})
	return r
}

// Register adds or replaces a step.
func (r *Registry) Register(name string, s Step) {
	r.steps[name] = s
}

// Validate checks that every step named by rules is registered, so a
// misconfigured table fails before any file is transformed.
func (r *Registry) Validate(rules classify.Rules) error {
	for i, rule := range rules {
		for _, step := range rule.Use {
			if _, ok := r.steps[step.Name]; !ok {
				return fmt.Errorf("%w %q in rule %d (%s)", ErrUnknownStep, step.Name, i, rule.Test)
			}
		}
	}
	return nil
}

// Run executes chain over a.
func (r *Registry) Run(ctx context.Context, chain classify.Chain, a *Asset) error {
	return r.run(ctx, chain, 0, a)
}

func (r *Registry) run(ctx context.Context, chain classify.Chain, i int, a *Asset) error {
	if i == len(chain) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	spec := chain[i]
	step, ok := r.steps[spec.Name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownStep, spec.Name)
	}
	next := func(ctx context.Context, a *Asset) error {
		return r.run(ctx, chain, i+1, a)
	}
	if err := step.Apply(ctx, a, Options(spec.Options), next); err != nil {
		var se *StepError
		if errors.As(err, &se) {
			return err
		}
		return &StepError{Step: spec.Name, Resource: a.Resource(), Err: err}
	}
	return nil
}

// StepError carries the failing step and resource.
type StepError struct {
	Step     string
	Resource string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Step, filepath.ToSlash(e.Resource), e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
