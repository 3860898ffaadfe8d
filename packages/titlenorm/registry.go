// Package titlenorm rewrites localized season/episode descriptors in release
// titles into the compact S/E form. Parsers are plain functions kept in a
// registry keyed by locale or site.
package titlenorm

import (
	"sort"
	"sync"

	"metasearch/packages/category"
)

type Options struct {
	// StripNonLatin drops non-Latin title segments and keeps only the
	// transliterated ones, with the descriptors moved to the end.
	StripNonLatin bool
}

// Func never fails: input it cannot handle comes back unchanged.
type Func func(title string, cats []category.ID, opts Options) string

var (
	mu       sync.RWMutex
	registry = map[string]Func{}
)

func init() {
	for _, l := range locales {
		Register(l.key, newLocaleParser(l))
	}
}

// Register binds fn to key, replacing any previous binding.
func Register(key string, fn Func) {
	mu.Lock()
	defer mu.Unlock()
	registry[key] = fn
}

func Lookup(key string) (Func, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[key]
	return fn, ok
}

func Keys() []string {
	mu.RLock()
	defer mu.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Identity is used by indexers that declare no normalizer.
func Identity(title string, _ []category.ID, _ Options) string { return title }
