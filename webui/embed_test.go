package webui

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSkeletonMountsIntoMain(t *testing.T) {
	html, err := fs.ReadFile(FS, "web/index.html")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`id="main"`, `src="app.js"`} {
		if !strings.Contains(string(html), want) {
			t.Errorf("index.html lacks %s", want)
		}
	}

	js, err := fs.ReadFile(FS, "web/site/index.js")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"require('./style.css')",
		"require('../index.html')",
		"from './src/Main.elm'",
		"getElementById('main')",
		"Elm.Main.init({ node: mountNode })",
	} {
		if !strings.Contains(string(js), want) {
			t.Errorf("index.js lacks %s", want)
		}
	}
}

func TestScaffold(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "index.html")
	if err := os.WriteFile(keep, []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}

	written, err := Scaffold(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range written {
		if p == "index.html" {
			t.Error("existing index.html overwritten")
		}
	}
	if got, _ := os.ReadFile(keep); string(got) != "mine" {
		t.Errorf("index.html = %q", got)
	}
	for _, p := range []string{"site/index.js", "site/style.css", "site/src/Main.elm", "site/elm.json", "site/sitepack.yaml"} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p))); err != nil {
			t.Errorf("%s not scaffolded: %v", p, err)
		}
	}

	written, err = Scaffold(dir, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 6 {
		t.Errorf("overwrite wrote %v", written)
	}
}
