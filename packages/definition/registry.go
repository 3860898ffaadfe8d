package definition

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source is one raw recipe document and where it came from.
type Source struct {
	Name string
	Data []byte
}

// Registry holds the active definitions. It is filled once by Build and only
// read afterwards.
type Registry struct {
	defs map[string]*Definition
	ids  []string
}

// Build loads every source. Malformed documents and duplicate ids are logged
// and left out; they never stop the remaining definitions from loading.
func Build(sources []Source) (*Registry, []error) {
	r := &Registry{defs: make(map[string]*Definition, len(sources))}
	var errs []error

	for _, src := range sources {
		def, err := LoadDefinition(src.Data)
		if err != nil {
			slog.Error("Skipping invalid indexer definition", "source", src.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
			continue
		}
		if _, dup := r.defs[def.ID]; dup {
			err := fmt.Errorf("%s: duplicate indexer id %q", src.Name, def.ID)
			slog.Error("Skipping duplicate indexer definition", "source", src.Name, "indexer", def.ID)
			errs = append(errs, err)
			continue
		}
		r.defs[def.ID] = def
		r.ids = append(r.ids, def.ID)
		slog.Info("Loaded indexer definition", "indexer", def.ID, "name", def.Name, "version", def.Version)
	}
	sort.Strings(r.ids)
	return r, errs
}

// ReadDir returns every .yml/.yaml document in dir.
func ReadDir(dir string) ([]Source, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not read definitions directory: %w", err)
	}

	var sources []Source
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || (!strings.HasSuffix(name, ".yml") && !strings.HasSuffix(name, ".yaml")) {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("Could not read definition file", "path", path, "error", err)
			continue
		}
		sources = append(sources, Source{Name: path, Data: data})
	}
	return sources, nil
}

func (r *Registry) Get(id string) (*Definition, bool) {
	def, ok := r.defs[id]
	return def, ok
}

// IDs returns the indexer ids in sorted order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

func (r *Registry) All() []*Definition {
	out := make([]*Definition, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.defs[id])
	}
	return out
}

func (r *Registry) Len() int { return len(r.ids) }
