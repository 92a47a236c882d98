package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// ElmCompiler turns an Elm source file into JavaScript.
type ElmCompiler interface {
	Compile(ctx context.Context, path string, optimize bool) ([]byte, error)
}

// ErrNoElmProject is returned when no elm.json is found above a source file.
var ErrNoElmProject = errors.New("no elm.json found")

// ExecCompiler runs the elm binary.
// Compiles are serialized: elm make holds a lock on the project's elm-stuff.
type ExecCompiler struct {
	Binary string

	mu sync.Mutex
}

// NewExecCompiler returns an ExecCompiler for binary ("elm" when empty).
func NewExecCompiler(binary string) *ExecCompiler {
	if binary == "" {
		binary = "elm"
	}
	return &ExecCompiler{Binary: binary}
}

// Compile runs `elm make <path> --output=<tmp> [--optimize]` from the
// directory holding elm.json and returns the generated JavaScript.
func (c *ExecCompiler) Compile(ctx context.Context, path string, optimize bool) ([]byte, error) {
	root, err := FindElmProject(filepath.Dir(path))
	if err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp("", "sitepack-elm-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)
	out := filepath.Join(tmp, "elm.js")

	args := []string{"make", path, "--output=" + out}
	if optimize {
		args = append(args, "--optimize")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Dir = root
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w\n%s", c.Binary, strings.Join(args[:2], " "), err, strings.TrimSpace(stderr.String()))
	}
	js, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read compiler output: %w", err)
	}
	return js, nil
}

// FindElmProject walks up from dir to the first directory containing elm.json.
func FindElmProject(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "elm.json")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoElmProject
		}
		dir = parent
	}
}

// elmStep compiles an Elm module and exports the resulting Elm object.
type elmStep struct {
	compiler ElmCompiler
}

func (s elmStep) Apply(ctx context.Context, a *Asset, opts Options, next Next) error {
	if s.compiler == nil {
		return fmt.Errorf("no Elm compiler configured")
	}
	js, err := s.compiler.Compile(ctx, a.Path, opts.Bool("optimize", false))
	if err != nil {
		return err
	}
	// Compiled Elm attaches itself to `this`; bind that to the module's exports.
	var b strings.Builder
	b.WriteString("(function () {\n")
	b.Write(js)
	b.WriteString("\n}).call(module.exports);\n")
	a.Contents = b.String()
	return next(ctx, a)
}
