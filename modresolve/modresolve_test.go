package modresolve

import (
	"errors"
	"testing"

	"github.com/nanojs/corevm/hostport"
	"github.com/nanojs/corevm/value"
)

type fakeSource struct {
	files map[string][]byte
	style hostport.PathStyle
	reads int
}

func (f *fakeSource) ReadSource(path string) ([]byte, error) {
	f.reads++
	b, ok := f.files[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}
func (f *fakeSource) Getwd() string              { return "/app" }
func (f *fakeSource) PathStyle() hostport.PathStyle { return f.style }

var _ hostport.Source = (*fakeSource)(nil)

func TestJoin_NormalizesDotSegments(t *testing.T) {
	got := Join(hostport.PathStyleUnix, "/app/lib", "../util/./math.js")
	want := "/app/util/math.js"
	if got != want {
		t.Fatalf("Join = %q, want %q", got, want)
	}
}

func TestJoin_AbsoluteSpecifierReplacesDir(t *testing.T) {
	got := Join(hostport.PathStyleUnix, "/app/lib", "/root/other.js")
	want := "/root/other.js"
	if got != want {
		t.Fatalf("Join = %q, want %q", got, want)
	}
}

func TestResolve_ParsesAndCaches(t *testing.T) {
	src := &fakeSource{
		files: map[string][]byte{"/app/a.js": []byte("1;")},
		style: hostport.PathStyleUnix,
	}
	parseCalls := 0
	r := New(src, func(source []byte, path string) (value.Value, error) {
		parseCalls++
		return value.Value(42), nil
	})

	v1, err := r.Resolve(1, "/app", "a.js")
	if err != nil {
		t.Fatal(err)
	}
	v2, err := r.Resolve(1, "/app", "a.js")
	if err != nil {
		t.Fatal(err)
	}
	if v1 != v2 {
		t.Fatalf("v1 != v2: %v vs %v", v1, v2)
	}
	if parseCalls != 1 {
		t.Fatalf("parseCalls = %d, want 1 (second Resolve should hit cache)", parseCalls)
	}
	if src.reads != 1 {
		t.Fatalf("reads = %d, want 1", src.reads)
	}
}

func TestResolve_DistinctRealmsDoNotShareCache(t *testing.T) {
	src := &fakeSource{
		files: map[string][]byte{"/app/a.js": []byte("1;")},
		style: hostport.PathStyleUnix,
	}
	parseCalls := 0
	r := New(src, func(source []byte, path string) (value.Value, error) {
		parseCalls++
		return value.Value(42), nil
	})

	if _, err := r.Resolve(1, "/app", "a.js"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve(2, "/app", "a.js"); err != nil {
		t.Fatal(err)
	}
	if parseCalls != 2 {
		t.Fatalf("parseCalls = %d, want 2 (different realms must not share a cache entry)", parseCalls)
	}
}

func TestResolve_MissingFile(t *testing.T) {
	src := &fakeSource{files: map[string][]byte{}, style: hostport.PathStyleUnix}
	r := New(src, func(source []byte, path string) (value.Value, error) {
		return 0, nil
	})
	if _, err := r.Resolve(1, "/app", "missing.js"); err == nil {
		t.Fatal("expected error resolving a missing module")
	}
}

func TestForget_EvictsCacheEntry(t *testing.T) {
	src := &fakeSource{
		files: map[string][]byte{"/app/a.js": []byte("1;")},
		style: hostport.PathStyleUnix,
	}
	parseCalls := 0
	r := New(src, func(source []byte, path string) (value.Value, error) {
		parseCalls++
		return value.Value(42), nil
	})

	if _, err := r.Resolve(1, "/app", "a.js"); err != nil {
		t.Fatal(err)
	}
	r.Forget(1, "/app/a.js")
	if _, err := r.Resolve(1, "/app", "a.js"); err != nil {
		t.Fatal(err)
	}
	if parseCalls != 2 {
		t.Fatalf("parseCalls = %d, want 2 after Forget", parseCalls)
	}
}
