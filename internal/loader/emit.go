package loader

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// EmittedFile is a file a step asked to place in the output directory.
type EmittedFile struct {
	Name     string
	Contents []byte
}

// Emitter collects emitted files in memory until the build commits.
// Steps run concurrently, so it is safe for concurrent use.
type Emitter struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewEmitter returns an empty Emitter.
func NewEmitter() *Emitter {
	return &Emitter{files: make(map[string][]byte)}
}

// Emit records name. Emitting the same name twice is fine as long as the
// bytes agree; two different files mapping to one name is an error.
func (e *Emitter) Emit(name string, data []byte) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("emit: invalid output name %q", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.files[name]; ok && !bytes.Equal(prev, data) {
		return fmt.Errorf("emit: conflicting contents for %q", name)
	}
	e.files[name] = data
	return nil
}

// Files returns the emitted files sorted by name.
func (e *Emitter) Files() []EmittedFile {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EmittedFile, 0, len(e.files))
	for name, data := range e.files {
		out = append(out, EmittedFile{Name: name, Contents: data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset forgets everything emitted so far.
func (e *Emitter) Reset() {
	e.mu.Lock()
	e.files = make(map[string][]byte)
	e.mu.Unlock()
}

// ContentHash is the hex content hash used in [hash] name templates and
// artifact records.
func ContentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// InterpolateName expands [name], [ext], [hash] and [contenthash] for the
// file at path with the given contents.
func InterpolateName(template, path string, data []byte) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	r := strings.NewReplacer(
		"[name]", name,
		"[ext]", strings.TrimPrefix(ext, "."),
		"[contenthash]", ContentHash(data),
		"[hash]", ContentHash(data),
	)
	return r.Replace(template)
}
