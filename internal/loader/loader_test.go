package loader

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/vesaa/sitepack/internal/classify"
)

type fakeCompiler struct {
	js       string
	err      error
	optimize bool
	calls    int
}

func (f *fakeCompiler) Compile(_ context.Context, _ string, optimize bool) ([]byte, error) {
	f.calls++
	f.optimize = optimize
	return []byte(f.js), f.err
}

func run(t *testing.T, r *Registry, resource string, src []byte) (*Asset, error) {
	t.Helper()
	chain, ok := classify.DefaultRules().Select(resource)
	if !ok {
		t.Fatalf("no rule for %q", resource)
	}
	a := &Asset{Path: resource, Source: src}
	return a, r.Run(context.Background(), chain, a)
}

func TestChainEntersStepsInDeclaredOrder(t *testing.T) {
	r := &Registry{steps: map[string]Step{}}
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		r.Register(name, StepFunc(func(ctx context.Context, a *Asset, _ Options, next Next) error {
			order = append(order, name)
			a.Contents += name
			return next(ctx, a)
		}))
	}
	a := &Asset{Path: "/x"}
	chain := classify.Chain{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	if err := r.Run(context.Background(), chain, a); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(order, []string{"a", "b", "c"}) {
		t.Errorf("order = %v", order)
	}
	if a.Contents != "abc" {
		t.Errorf("each step should consume the previous output, got %q", a.Contents)
	}
}

func TestRegistryValidate(t *testing.T) {
	r := NewRegistry(NewEmitter(), nil)
	if err := r.Validate(classify.DefaultRules()); err != nil {
		t.Fatalf("default rules should validate: %v", err)
	}
	bad := classify.Rules{{Test: classify.DefaultRules()[0].Test, Use: classify.Chain{{Name: "sass-loader"}}}}
	if err := r.Validate(bad); !errors.Is(err, ErrUnknownStep) {
		t.Errorf("err = %v, want ErrUnknownStep", err)
	}
}

func TestStepErrorsNameStepAndResource(t *testing.T) {
	r := NewRegistry(NewEmitter(), &fakeCompiler{err: errors.New("syntax problem")})
	_, err := run(t, r, "/site/src/Main.elm", []byte("module Main"))
	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StepError", err)
	}
	if se.Step != classify.ElmLoader || se.Resource != "/site/src/Main.elm" {
		t.Errorf("StepError = %+v", se)
	}
	if !strings.Contains(err.Error(), "syntax problem") {
		t.Errorf("underlying error lost: %v", err)
	}
}

func TestStyleAndCSS(t *testing.T) {
	r := NewRegistry(NewEmitter(), nil)
	src := []byte(`@font-face { src: url(fonts/a.woff) format("woff"), url("../b.ttf?v=1.2.3"); }
body { background: url(data:image/png;base64,AAAA); }
.x { background: url(/abs.png); }`)
	a, err := run(t, r, "/site/style.css", src)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`require("./fonts/a.woff")`,
		`require("../b.ttf?v=1.2.3")`,
		`document.createElement("style")`,
		`module.exports = list;`,
		`module.exports = content.locals || {};`,
		`url(/abs.png)`,
		`url(data:image/png;base64,AAAA)`,
	} {
		if !strings.Contains(a.Contents, want) {
			t.Errorf("module missing %q:\n%s", want, a.Contents)
		}
	}
	// style-loader wraps the css-loader output.
	if strings.Index(a.Contents, "var content") > strings.Index(a.Contents, "var list") {
		t.Error("css module should be nested inside the style wrapper")
	}
}

func TestModuleRequest(t *testing.T) {
	tests := []struct {
		ref, request, fragment string
		ok                     bool
	}{
		{"a.woff", "./a.woff", "", true},
		{"./a.woff", "./a.woff", "", true},
		{"../a.woff", "../a.woff", "", true},
		{"~pkg/font.ttf", "pkg/font.ttf", "", true},
		{"font.eot?#iefix", "./font.eot", "?#iefix", true},
		{"font.svg#glyph", "./font.svg", "#glyph", true},
		{"#frag", "", "", false},
		{"/abs.png", "", "", false},
		{"https://cdn/x.woff", "", "", false},
		{"//cdn/x.woff", "", "", false},
		{"DATA:foo", "", "", false},
	}
	for _, tt := range tests {
		req, frag, ok := moduleRequest(tt.ref)
		if req != tt.request || frag != tt.fragment || ok != tt.ok {
			t.Errorf("moduleRequest(%q) = %q, %q, %v", tt.ref, req, frag, ok)
		}
	}
}

func TestFileLoaderHTMLKeepsName(t *testing.T) {
	em := NewEmitter()
	r := NewRegistry(em, nil)
	html := []byte("<html></html>")
	a, err := run(t, r, "/site/index.html", html)
	if err != nil {
		t.Fatal(err)
	}
	files := em.Files()
	if len(files) != 1 || files[0].Name != "index.html" || !bytes.Equal(files[0].Contents, html) {
		t.Fatalf("emitted = %+v", files)
	}
	if a.Contents != "module.exports = \"index.html\";\n" {
		t.Errorf("Contents = %q", a.Contents)
	}
}

func TestFileLoaderDefaultsToContentHash(t *testing.T) {
	em := NewEmitter()
	r := NewRegistry(em, nil)
	data := []byte("ttf bytes")
	if _, err := run(t, r, "/site/fonts/a.ttf", data); err != nil {
		t.Fatal(err)
	}
	want := ContentHash(data) + ".ttf"
	if files := em.Files(); len(files) != 1 || files[0].Name != want {
		t.Errorf("emitted = %+v, want %s", files, want)
	}
}

func TestURLLoaderLimit(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		inline bool
	}{
		{"below limit", 9999, true},
		{"exactly at limit", 10000, true},
		{"one over limit", 10001, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			em := NewEmitter()
			r := NewRegistry(em, nil)
			a, err := run(t, r, "/site/fonts/a.woff", bytes.Repeat([]byte{'w'}, tt.size))
			if err != nil {
				t.Fatal(err)
			}
			inlined := strings.Contains(a.Contents, "data:application/font-woff;base64,")
			if inlined != tt.inline {
				t.Errorf("inlined = %v, want %v", inlined, tt.inline)
			}
			if emitted := len(em.Files()); (emitted == 1) == tt.inline {
				t.Errorf("emitted %d files, inline = %v", emitted, tt.inline)
			}
		})
	}
}

func TestFontFilesAreNeverInlined(t *testing.T) {
	for _, p := range []string{"/f/a.ttf", "/f/a.eot", "/f/a.svg"} {
		em := NewEmitter()
		a, err := run(t, NewRegistry(em, nil), p, []byte("x"))
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(a.Contents, "data:") || len(em.Files()) != 1 {
			t.Errorf("%s should be emitted as a file: %q", p, a.Contents)
		}
	}
}

func TestElmLoader(t *testing.T) {
	fc := &fakeCompiler{js: "(function(scope){scope.Elm = {};}(this));"}
	a, err := run(t, NewRegistry(NewEmitter(), fc), "/site/src/Main.elm", []byte("module Main"))
	if err != nil {
		t.Fatal(err)
	}
	if !fc.optimize {
		t.Error("elm rule should compile with optimize=true")
	}
	if !strings.Contains(a.Contents, fc.js) || !strings.HasSuffix(a.Contents, "}).call(module.exports);\n") {
		t.Errorf("Contents = %q", a.Contents)
	}
}

func TestFindElmProject(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "elm.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(root, "src", "Page")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := FindElmProject(src)
	if err != nil {
		t.Fatal(err)
	}
	if got != root {
		t.Errorf("FindElmProject = %q, want %q", got, root)
	}
}

func TestEmitterConflicts(t *testing.T) {
	em := NewEmitter()
	if err := em.Emit("a.txt", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := em.Emit("a.txt", []byte("1")); err != nil {
		t.Errorf("identical re-emit should succeed: %v", err)
	}
	if err := em.Emit("a.txt", []byte("2")); err == nil {
		t.Error("conflicting emit should fail")
	}
	if err := em.Emit("../a.txt", nil); err == nil {
		t.Error("path components must be rejected")
	}
	em.Reset()
	if len(em.Files()) != 0 {
		t.Error("Reset should clear files")
	}
}

func TestInterpolateName(t *testing.T) {
	data := []byte("abc")
	got := InterpolateName("[name]-[hash].[ext]", "/x/font.woff2", data)
	want := "font-" + ContentHash(data) + ".woff2"
	if got != want {
		t.Errorf("InterpolateName = %q, want %q", got, want)
	}
	if len(ContentHash(data)) != 32 {
		t.Errorf("ContentHash length = %d", len(ContentHash(data)))
	}
}
