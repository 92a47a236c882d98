package classify

import (
	"errors"
	"reflect"
	"testing"

	"github.com/vesaa/sitepack/internal/config"
)

func TestSelectDefaultRules(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		name      string
		resource  string
		wantOK    bool
		wantChain []string
	}{
		{"css", "/site/style.css", true, []string{StyleLoader, CSSLoader}},
		{"scss", "/site/theme/main.scss", true, []string{StyleLoader, CSSLoader}},
		{"css under node_modules is not excluded", "/site/node_modules/pkg/a.css", true, []string{StyleLoader, CSSLoader}},
		{"html", "/index.html", true, []string{FileLoader}},
		{"html under node_modules", "/site/node_modules/pkg/index.html", false, nil},
		{"elm", "/site/src/Main.elm", true, []string{ElmLoader}},
		{"elm in elm-stuff", "/site/elm-stuff/0.19.1/Main.elm", false, nil},
		{"elm in node_modules", "/site/node_modules/x/Main.elm", false, nil},
		{"woff", "/site/fonts/a.woff", true, []string{URLLoader}},
		{"woff2", "/site/fonts/a.woff2", true, []string{URLLoader}},
		{"versioned woff2", "/site/fonts/a.woff2?v=4.7.0", true, []string{URLLoader}},
		{"ttf", "/site/fonts/a.ttf", true, []string{FileLoader}},
		{"eot", "/site/fonts/a.eot?v=1.2.3", true, []string{FileLoader}},
		{"svg", "/site/img/logo.svg", true, []string{FileLoader}},
		{"badly versioned svg", "/site/img/logo.svg?v=10.0.0", false, nil},
		{"js passthrough", "/site/index.js", false, nil},
		{"png passthrough", "/site/img/a.png", false, nil},
		{"windows separators", `C:\site\node_modules\pkg\index.html`, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, ok := rules.Select(tt.resource)
			if ok != tt.wantOK {
				t.Fatalf("Select(%q) ok = %v, want %v", tt.resource, ok, tt.wantOK)
			}
			if !ok {
				if chain != nil {
					t.Errorf("passthrough returned chain %v", chain)
				}
				return
			}
			if got := chain.Names(); !reflect.DeepEqual(got, tt.wantChain) {
				t.Errorf("Select(%q) = %v, want %v", tt.resource, got, tt.wantChain)
			}
		})
	}
}

func TestDefaultRuleOptions(t *testing.T) {
	rules := DefaultRules()

	html, _ := rules.Select("/index.html")
	if got := html[0].Option("name"); got != "[name].[ext]" {
		t.Errorf("html name option = %v", got)
	}

	elm, _ := rules.Select("/src/Main.elm")
	if got := elm[0].Option("optimize"); got != true {
		t.Errorf("elm optimize option = %v, want true", got)
	}

	woff, _ := rules.Select("/a.woff")
	if got := woff[0].Option("limit"); got != 10000 {
		t.Errorf("woff limit = %v, want 10000", got)
	}
	if got := woff[0].Option("mimetype"); got != "application/font-woff" {
		t.Errorf("woff mimetype = %v", got)
	}

	ttf, _ := rules.Select("/a.ttf")
	if len(ttf[0].Options) != 0 {
		t.Errorf("ttf options = %v, want none", ttf[0].Options)
	}
}

func TestSelectFirstMatchWins(t *testing.T) {
	rules, err := CompileRules([]config.RuleConfig{
		{Test: `\.txt$`, Exclude: []string{`vendor`}, Use: []string{"first"}},
		{Test: `\.txt$`, Use: []string{"second"}},
		{Test: `.*`, Use: []string{"third"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	chain, _ := rules.Select("/a/readme.txt")
	if got := chain.Names(); !reflect.DeepEqual(got, []string{"first"}) {
		t.Errorf("got %v, want only the first rule", got)
	}

	// Excluded by the first rule falls to the next one, never both.
	chain, _ = rules.Select("/vendor/readme.txt")
	if got := chain.Names(); !reflect.DeepEqual(got, []string{"second"}) {
		t.Errorf("got %v, want second", got)
	}
}

func TestSelectIsIndependentOfCallOrder(t *testing.T) {
	rules := DefaultRules()
	paths := []string{"/a.css", "/b.elm", "/c.woff", "/node_modules/d.html", "/e.js"}

	first := make([][]string, len(paths))
	for i, p := range paths {
		c, _ := rules.Select(p)
		first[i] = c.Names()
	}
	for i := len(paths) - 1; i >= 0; i-- {
		c, _ := rules.Select(paths[i])
		if !reflect.DeepEqual(c.Names(), first[i]) {
			t.Errorf("Select(%q) changed with evaluation order", paths[i])
		}
	}
}

func TestParseStep(t *testing.T) {
	tests := []struct {
		in   string
		want TransformStep
	}{
		{"file-loader", TransformStep{Name: "file-loader"}},
		{"file-loader?name=[name].[ext]", TransformStep{Name: "file-loader", Options: map[string]any{"name": "[name].[ext]"}}},
		{"url-loader?limit=10000&mimetype=application/font-woff", TransformStep{Name: "url-loader", Options: map[string]any{
			"limit": 10000, "mimetype": "application/font-woff",
		}}},
		{"elm-loader?optimize=true", TransformStep{Name: "elm-loader", Options: map[string]any{"optimize": true}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStep(tt.in)
			if err != nil {
				t.Fatalf("ParseStep() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseStep() = %#v, want %#v", got, tt.want)
			}
		})
	}

	if _, err := ParseStep("?limit=1"); err == nil {
		t.Error("expected error for missing loader name")
	}
}

func TestStepString(t *testing.T) {
	step := TransformStep{Name: "url-loader", Options: map[string]any{"limit": 10000, "mimetype": "application/font-woff"}}
	if got, want := step.String(), "url-loader?limit=10000&mimetype=application/font-woff"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestCompileRulesErrors(t *testing.T) {
	_, err := CompileRules([]config.RuleConfig{{Test: `(`, Use: []string{"x"}}})
	if !errors.Is(err, ErrInvalidRule) {
		t.Errorf("bad test regex: err = %v, want ErrInvalidRule", err)
	}
	_, err = CompileRules([]config.RuleConfig{{Test: `x`, Exclude: []string{`[`}, Use: []string{"x"}}})
	if !errors.Is(err, ErrInvalidRule) {
		t.Errorf("bad exclude regex: err = %v, want ErrInvalidRule", err)
	}
}

func TestUnparsed(t *testing.T) {
	u := DefaultUnparsed()
	if !u.Contains("/site/src/Main.elm") {
		t.Error("Main.elm should be unparsed")
	}
	if u.Contains("/site/index.js") {
		t.Error("index.js should be parsed")
	}

	if _, err := CompileUnparsed([]string{`(`}); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("err = %v, want ErrInvalidRule", err)
	}
}
