package dialect

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Load decodes one YAML descriptor and validates it.
func Load(r io.Reader) (*Descriptor, error) {
	var d Descriptor
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("dialect: decode: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	d.finalize()
	return &d, nil
}

// LoadFile reads a descriptor from a file.
func LoadFile(name string) (*Descriptor, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("dialect: open %s: %w", name, err)
	}
	defer f.Close()

	d, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(name), err)
	}
	return d, nil
}

// LoadDir loads every *.yaml and *.yml file of dir into a registry.
func LoadDir(dir string) (*Registry, error) {
	return loadFS(os.DirFS(dir), ".")
}

// Builtin returns a registry of the dialects shipped with the binary.
func Builtin() (*Registry, error) {
	return loadFS(builtinFS, "builtin")
}

func loadFS(fsys fs.FS, dir string) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("dialect: read dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	reg := NewRegistry()
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		f, err := fsys.Open(path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("dialect: open %s: %w", e.Name(), err)
		}
		d, err := Load(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		if err := reg.Add(d); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
