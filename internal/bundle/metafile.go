package bundle

import (
	"encoding/json"
	"sort"
)

// Metafile is the subset of esbuild's metafile JSON used for build reports.
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput is one input file in the metafile.
type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
}

// MetafileImport is one import edge.
type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
}

// MetafileOutput is one output file in the metafile.
type MetafileOutput struct {
	Bytes      int                     `json:"bytes"`
	Inputs     map[string]InputContrib `json:"inputs"`
	EntryPoint string                  `json:"entryPoint,omitempty"`
}

// InputContrib is the contribution of an input to an output.
type InputContrib struct {
	BytesInOutput int `json:"bytesInOutput"`
}

// ParseMetafile decodes esbuild's metafile; an empty string yields an empty
// Metafile.
func ParseMetafile(raw string) (*Metafile, error) {
	m := &Metafile{}
	if raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), m); err != nil {
		return nil, err
	}
	return m, nil
}

// ModuleCount is the number of inputs reachable from the entry, excluding
// the virtual entry module itself.
func (m *Metafile) ModuleCount() int {
	n := 0
	for path := range m.Inputs {
		if !isEntryPath(path) {
			n++
		}
	}
	return n
}

// Externals lists import paths that were left unresolved, sorted.
func (m *Metafile) Externals() []string {
	seen := map[string]bool{}
	for _, in := range m.Inputs {
		for _, imp := range in.Imports {
			if imp.External {
				seen[imp.Path] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
