package strs

import "github.com/nanojs/corevm/value"

// magicStrings is the compiled-in table of well-known ECMAScript property
// and constant names (spec.md §3.3 "Direct magic"). A real build carries
// several hundred; this distillation keeps the set the core itself and
// its tests exercise, exactly as spec.md §1 treats the built-in library
// as an external collaborator that would extend this table further.
var magicStrings = []string{
	"",
	"length",
	"prototype",
	"constructor",
	"name",
	"message",
	"undefined",
	"null",
	"true",
	"false",
	"toString",
	"valueOf",
	"__proto__",
	"NaN",
	"Infinity",
	"arguments",
	"this",
	"get",
	"set",
	"done",
	"value",
	"next",
	"Symbol.iterator",
}

type magicEntry struct {
	bytes []byte
	id    uint32
}

// byLength buckets magic strings by byte length so lookup can
// "short-circuit by length bucket" per spec.md §4.D step 1.
var byLength = func() map[int][]magicEntry {
	m := make(map[int][]magicEntry)
	for i, s := range magicStrings {
		b := []byte(s)
		m[len(b)] = append(m[len(b)], magicEntry{bytes: b, id: uint32(i)})
	}
	return m
}()

// lookupMagic returns the magic-string DIRECT_STRING Value for bytes, if
// any magic string matches exactly.
func lookupMagic(bytes []byte) (value.Value, bool) {
	bucket, ok := byLength[len(bytes)]
	if !ok {
		return 0, false
	}
	for _, e := range bucket {
		if string(e.bytes) == string(bytes) {
			return value.DirectMagic(e.id), true
		}
	}
	return 0, false
}

// MagicString returns the compiled-in bytes for a magic-string id.
func MagicString(id uint32) string {
	if int(id) < len(magicStrings) {
		return magicStrings[id]
	}
	return ""
}
