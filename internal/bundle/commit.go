package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	stagePrefix  = ".sitepack-new-"
	backupPrefix = ".sitepack-old-"
)

var rename = os.Rename

// install is one artifact moved into place, with the file it displaced.
type install struct {
	dst, backup string
}

// Commit writes every artifact of res into outDir. Files are staged next to
// their destination first and renamed only once all of them are written.
// Files being replaced are moved aside until every rename succeeded; if one
// fails they are put back, so a failure leaves the previous output in place.
func Commit(outDir string, res *Result) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	staged := make([]string, 0, len(res.Artifacts))
	cleanup := func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}

	for _, a := range res.Artifacts {
		dst := filepath.Join(outDir, a.Name)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			cleanup()
			return err
		}
		f, err := os.CreateTemp(filepath.Dir(dst), stagePrefix+"*")
		if err != nil {
			cleanup()
			return err
		}
		staged = append(staged, f.Name())
		_, werr := f.Write(a.Contents)
		cerr := f.Close()
		if err := errors.Join(werr, cerr); err != nil {
			cleanup()
			return fmt.Errorf("write %s: %w", a.Name, err)
		}
		if err := os.Chmod(f.Name(), 0o644); err != nil {
			cleanup()
			return err
		}
	}

	done := make([]install, 0, len(res.Artifacts))
	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			in := done[i]
			if in.backup != "" {
				rename(in.backup, in.dst)
			} else {
				os.Remove(in.dst)
			}
		}
		cleanup()
	}

	for i, a := range res.Artifacts {
		in := install{dst: filepath.Join(outDir, a.Name)}
		if _, err := os.Lstat(in.dst); err == nil {
			in.backup = filepath.Join(filepath.Dir(in.dst), backupPrefix+filepath.Base(in.dst))
			if err := rename(in.dst, in.backup); err != nil {
				rollback()
				return fmt.Errorf("move aside %s: %w", a.Name, err)
			}
		}
		if err := rename(staged[i], in.dst); err != nil {
			if in.backup != "" {
				rename(in.backup, in.dst)
			}
			rollback()
			return fmt.Errorf("install %s: %w", a.Name, err)
		}
		done = append(done, in)
	}

	for _, in := range done {
		if in.backup != "" {
			os.Remove(in.backup)
		}
	}
	return nil
}
