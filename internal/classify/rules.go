// Package classify maps each resource discovered during a build to the chain
// of transform steps that processes it.
//
// Rules are evaluated in declaration order and the first rule whose test
// matches and whose exclusions do not wins. A resource that no rule selects is
// passed through to the bundler untouched; there is no "unknown file" error.
package classify

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/vesaa/sitepack/internal/config"
)

// Loader names understood by the loader registry.
const (
	StyleLoader = "style-loader"
	CSSLoader   = "css-loader"
	FileLoader  = "file-loader"
	URLLoader   = "url-loader"
	ElmLoader   = "elm-loader"
)

// ErrInvalidRule is returned for rules that cannot be compiled.
var ErrInvalidRule = errors.New("invalid rule")

// TransformStep names one processing step and its options.
type TransformStep struct {
	Name    string
	Options map[string]any
}

// Option returns the named option, or nil.
func (s TransformStep) Option(key string) any {
	if s.Options == nil {
		return nil
	}
	return s.Options[key]
}

// String renders the step back into loader-string form.
func (s TransformStep) String() string {
	if len(s.Options) == 0 {
		return s.Name
	}
	q := url.Values{}
	for k, v := range s.Options {
		q.Set(k, fmt.Sprint(v))
	}
	// Encode sorts keys; brackets stay readable for name templates.
	enc, _ := url.QueryUnescape(q.Encode())
	return s.Name + "?" + enc
}

// Chain is the ordered list of steps applied to one resource.
type Chain []TransformStep

// Names lists the step names in order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.Name
	}
	return names
}

// Rule selects a chain for resources matching Test and none of Exclude.
type Rule struct {
	Test    *regexp.Regexp
	Exclude []*regexp.Regexp
	Use     Chain
}

// Matches reports whether the rule applies to resource.
func (r Rule) Matches(resource string) bool {
	if !r.Test.MatchString(resource) {
		return false
	}
	for _, ex := range r.Exclude {
		if ex.MatchString(resource) {
			return false
		}
	}
	return true
}

// Rules is an ordered rule table.
type Rules []Rule

// Select returns the chain of the first matching rule. ok is false when no
// rule applies and the resource should be passed through.
//
// resource is the file path including any query suffix such as "?v=1.2.3".
func (rs Rules) Select(resource string) (chain Chain, ok bool) {
	resource = normalize(resource)
	for _, r := range rs {
		if r.Matches(resource) {
			return r.Use, true
		}
	}
	return nil, false
}

// DefaultRules is the built-in rule table of the site build.
func DefaultRules() Rules {
	return Rules{
		{
			Test: regexp.MustCompile(`\.(css|scss)$`),
			Use:  Chain{{Name: StyleLoader}, {Name: CSSLoader}},
		},
		{
			Test:    regexp.MustCompile(`\.html$`),
			Exclude: []*regexp.Regexp{regexp.MustCompile(`node_modules`)},
			Use:     Chain{{Name: FileLoader, Options: map[string]any{"name": "[name].[ext]"}}},
		},
		{
			Test:    regexp.MustCompile(`\.elm$`),
			Exclude: []*regexp.Regexp{regexp.MustCompile(`elm-stuff`), regexp.MustCompile(`node_modules`)},
			Use:     Chain{{Name: ElmLoader, Options: map[string]any{"optimize": true}}},
		},
		{
			Test: regexp.MustCompile(`\.woff(2)?(\?v=[0-9]\.[0-9]\.[0-9])?$`),
			Use: Chain{{Name: URLLoader, Options: map[string]any{
				"limit":    10000,
				"mimetype": "application/font-woff",
			}}},
		},
		{
			Test: regexp.MustCompile(`\.(ttf|eot|svg)(\?v=[0-9]\.[0-9]\.[0-9])?$`),
			Use:  Chain{{Name: FileLoader}},
		},
	}
}

// CompileRules builds a rule table from config entries, preserving order.
func CompileRules(in []config.RuleConfig) (Rules, error) {
	out := make(Rules, 0, len(in))
	for i, rc := range in {
		test, err := regexp.Compile(rc.Test)
		if err != nil {
			return nil, fmt.Errorf("%w: rules[%d].test: %v", ErrInvalidRule, i, err)
		}
		r := Rule{Test: test}
		for _, ex := range rc.Exclude {
			re, err := regexp.Compile(ex)
			if err != nil {
				return nil, fmt.Errorf("%w: rules[%d].exclude: %v", ErrInvalidRule, i, err)
			}
			r.Exclude = append(r.Exclude, re)
		}
		for _, use := range rc.Use {
			step, err := ParseStep(use)
			if err != nil {
				return nil, fmt.Errorf("%w: rules[%d].use: %v", ErrInvalidRule, i, err)
			}
			r.Use = append(r.Use, step)
		}
		if len(r.Use) == 0 {
			return nil, fmt.Errorf("%w: rules[%d] has no steps", ErrInvalidRule, i)
		}
		out = append(out, r)
	}
	return out, nil
}

// ParseStep parses a loader string such as
// "url-loader?limit=10000&mimetype=application/font-woff".
// Integer and boolean query values are typed; everything else stays a string.
func ParseStep(s string) (TransformStep, error) {
	s = strings.TrimSpace(s)
	name, query, _ := strings.Cut(s, "?")
	if name == "" {
		return TransformStep{}, fmt.Errorf("empty loader name in %q", s)
	}
	step := TransformStep{Name: name}
	if query == "" {
		return step, nil
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return TransformStep{}, fmt.Errorf("loader %q: %w", name, err)
	}
	step.Options = make(map[string]any, len(values))
	for k, vs := range values {
		v := vs[len(vs)-1]
		if n, err := strconv.Atoi(v); err == nil {
			step.Options[k] = n
		} else if b, err := strconv.ParseBool(v); err == nil {
			step.Options[k] = b
		} else {
			step.Options[k] = v
		}
	}
	return step, nil
}

// Unparsed holds patterns for resources the bundler must not analyse for
// imports; the transform chain alone resolves their internal references.
type Unparsed []*regexp.Regexp

// CompileUnparsed compiles no-parse patterns.
func CompileUnparsed(patterns []string) (Unparsed, error) {
	out := make(Unparsed, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: no_parse %q: %v", ErrInvalidRule, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// DefaultUnparsed marks Elm sources as unparsed.
func DefaultUnparsed() Unparsed {
	return Unparsed{regexp.MustCompile(`\.elm$`)}
}

// Contains reports whether resource must not be parsed.
func (u Unparsed) Contains(resource string) bool {
	resource = normalize(resource)
	for _, re := range u {
		if re.MatchString(resource) {
			return true
		}
	}
	return false
}

// normalize converts Windows separators so the same patterns apply everywhere.
func normalize(resource string) string {
	return strings.ReplaceAll(resource, `\`, "/")
}
