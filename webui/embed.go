// Package webui exposes the embedded site skeleton.
// It MUST live at the module root to embed the sibling "web/" directory.
// internal/server serves web/index.html before the first build, and
// `sitepack init` copies the whole tree into a new project.
package webui

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FS is the embedded web directory tree.
// web/index.html is the page skeleton; web/site holds the bootstrap entry,
// stylesheet, a starter Elm module and the build config.
//
//go:embed web
var FS embed.FS

// Scaffold writes the skeleton into dir. Existing files are kept unless
// overwrite is set; the written paths are returned relative to dir.
func Scaffold(dir string, overwrite bool) ([]string, error) {
	root, err := fs.Sub(FS, "web")
	if err != nil {
		return nil, err
	}
	var written []string
	err = fs.WalkDir(root, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		dst := filepath.Join(dir, filepath.FromSlash(p))
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		if _, err := os.Stat(dst); err == nil && !overwrite {
			return nil
		}
		data, err := fs.ReadFile(root, p)
		if err != nil {
			return err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
		written = append(written, p)
		return nil
	})
	return written, err
}
