// Package modresolve implements spec.md §6.5: the default module resolver
// hook. It is layered above the core — the core only supplies string
// construction, object allocation, and a context-data slot to hang the
// module registry on — so this package depends on hostport and a
// caller-supplied parse function, never on the VM itself.
//
// The cache-by-key shape is grounded on the teacher's (deleted)
// resource/table.go UnifiedTable, which keyed stored values by an opaque
// handle; here the key is the semantically meaningful (realm,
// absolute_path) pair spec.md §6.5 names directly.
package modresolve

import (
	"strings"
	"sync"

	"github.com/nanojs/corevm/errvalue"
	"github.com/nanojs/corevm/hostport"
	"github.com/nanojs/corevm/value"
)

// Realm identifies the global scope a module is resolved and cached
// under; distinct realms never share a cache entry even for the same
// absolute path.
type Realm uint32

// ParseModule compiles source text read from path into an opaque module
// record (an object handle owned by the caller's object heap). The core
// itself has no notion of "module" — this hook is how one gets defined.
type ParseModule func(source []byte, path string) (value.Value, error)

type cacheKey struct {
	realm Realm
	path  string
}

// Resolver caches resolved modules by (realm, absolute_path), reading
// source files through a hostport.Source and parsing them with a
// caller-supplied ParseModule.
type Resolver struct {
	src   hostport.Source
	parse ParseModule

	mu    sync.RWMutex
	cache map[cacheKey]value.Value
}

func New(src hostport.Source, parse ParseModule) *Resolver {
	return &Resolver{src: src, parse: parse, cache: make(map[cacheKey]value.Value)}
}

// Resolve joins referrerDir with specifier using the host's path style,
// normalizes "." / ".." segments, and returns the cached module record if
// one already exists for (realm, absolute_path); otherwise it reads and
// parses the file and populates the cache.
func (r *Resolver) Resolve(realm Realm, referrerDir, specifier string) (value.Value, error) {
	abs := Join(r.src.PathStyle(), referrerDir, specifier)
	key := cacheKey{realm: realm, path: abs}

	r.mu.RLock()
	if v, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return v, nil
	}
	r.mu.RUnlock()

	source, err := r.src.ReadSource(abs)
	if err != nil {
		return 0, errvalue.New(errvalue.PhaseHost, errvalue.KindNotFound).
			Detail("module not found: %s", abs).Cause(err).Build()
	}
	mod, err := r.parse(source, abs)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.cache[key] = mod
	r.mu.Unlock()
	return mod, nil
}

// Forget evicts a single (realm, absolute_path) cache entry, used when a
// host wants to hot-reload a module without restarting the realm.
func (r *Resolver) Forget(realm Realm, absolutePath string) {
	r.mu.Lock()
	delete(r.cache, cacheKey{realm: realm, path: absolutePath})
	r.mu.Unlock()
}

// separator returns the path-component separator for style.
func separator(style hostport.PathStyle) byte {
	if style == hostport.PathStyleWindows {
		return '\\'
	}
	return '/'
}

// Join combines dir and specifier per style's separator convention and
// normalizes the result, collapsing "." segments and resolving ".."
// against the segment before it. A specifier that is already absolute
// (leads with the separator) replaces dir entirely instead of joining.
func Join(style hostport.PathStyle, dir, specifier string) string {
	sep := separator(style)
	var combined string
	if len(specifier) > 0 && specifier[0] == sep {
		combined = specifier
	} else {
		combined = dir + string(sep) + specifier
	}
	return normalize(combined, sep)
}

func normalize(p string, sep byte) string {
	leadingSep := len(p) > 0 && p[0] == sep
	parts := strings.Split(p, string(sep))
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, part)
		}
	}
	joined := strings.Join(out, string(sep))
	if leadingSep {
		return string(sep) + joined
	}
	return joined
}
