// Package snapshot implements spec.md §6.4: a delegated, supplemented
// snapshot format for serialized bytecode blocks. The core's only
// contract with a snapshot module is that deserialized string references
// are re-interned through strs at load time — no raw CP baked into a
// snapshot file is ever treated as a live heap address.
//
// The on-disk shape (header + literal table + compressed payload) is
// grounded on jerryscript's jerry-snapshot.c / jerryscript-snapshot.h
// (original_source): a versioned magic header followed by a literal
// string pool and an opaque bytecode blob. Compression of that blob uses
// a pooled klauspost/compress/zstd encoder/decoder, the same pooling
// shape as the teacher's compress/zstd_pure.go.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/nanojs/corevm/errvalue"
	"github.com/nanojs/corevm/heap"
	"github.com/nanojs/corevm/strs"
	"github.com/nanojs/corevm/value"
)

// Version is bumped whenever the on-disk layout changes incompatibly.
const Version = 1

var magic = [4]byte{'C', 'V', 'S', 'N'}

var encoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(fmt.Sprintf("snapshot: failed to create zstd encoder: %v", err))
		}
		return enc
	},
}

var decoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("snapshot: failed to create zstd decoder: %v", err))
		}
		return dec
	},
}

// Blob is a serialized, host-portable snapshot: a literal string pool plus
// an opaque bytecode payload, both compressed independently so the
// literal pool can be inspected (jerry_get_literals_from_snapshot-style)
// without inflating the whole bytecode section.
type Blob struct {
	Literals [][]byte
	Code     []byte
}

// Encode serializes a Blob to its wire format: a fixed header, the
// zstd-compressed literal pool, then the zstd-compressed code section.
func Encode(b Blob) []byte {
	var lit bytes.Buffer
	binary.Write(&lit, binary.LittleEndian, uint32(len(b.Literals)))
	for _, s := range b.Literals {
		binary.Write(&lit, binary.LittleEndian, uint32(len(s)))
		lit.Write(s)
	}

	compLit := compress(lit.Bytes())
	compCode := compress(b.Code)

	var out bytes.Buffer
	out.Write(magic[:])
	binary.Write(&out, binary.LittleEndian, uint32(Version))
	binary.Write(&out, binary.LittleEndian, uint32(len(compLit)))
	out.Write(compLit)
	binary.Write(&out, binary.LittleEndian, uint32(len(compCode)))
	out.Write(compCode)
	return out.Bytes()
}

// Decode parses the wire format produced by Encode, validating the magic
// and version header before touching the compressed sections.
func Decode(raw []byte) (Blob, error) {
	if len(raw) < 12 || !bytes.Equal(raw[:4], magic[:]) {
		return Blob{}, errvalue.New(errvalue.PhaseHost, errvalue.KindInvalidArg).Detail("not a corevm snapshot").Build()
	}
	r := bytes.NewReader(raw[4:])

	var version uint32
	binary.Read(r, binary.LittleEndian, &version)
	if version != Version {
		return Blob{}, errvalue.New(errvalue.PhaseHost, errvalue.KindUnsupported).
			Detail(fmt.Sprintf("snapshot version %d, want %d", version, Version)).Build()
	}

	compLit, err := readChunk(r)
	if err != nil {
		return Blob{}, err
	}
	compCode, err := readChunk(r)
	if err != nil {
		return Blob{}, err
	}

	litBytes, err := decompress(compLit)
	if err != nil {
		return Blob{}, err
	}
	code, err := decompress(compCode)
	if err != nil {
		return Blob{}, err
	}

	lr := bytes.NewReader(litBytes)
	var count uint32
	if err := binary.Read(lr, binary.LittleEndian, &count); err != nil {
		return Blob{}, errvalue.New(errvalue.PhaseHost, errvalue.KindCorruptHeap).Detail("truncated literal table").Build()
	}
	literals := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		var n uint32
		if err := binary.Read(lr, binary.LittleEndian, &n); err != nil {
			return Blob{}, errvalue.New(errvalue.PhaseHost, errvalue.KindCorruptHeap).Detail("truncated literal entry").Build()
		}
		s := make([]byte, n)
		if _, err := io.ReadFull(lr, s); err != nil {
			return Blob{}, errvalue.New(errvalue.PhaseHost, errvalue.KindCorruptHeap).Detail("truncated literal bytes").Build()
		}
		literals = append(literals, s)
	}

	return Blob{Literals: literals, Code: code}, nil
}

func readChunk(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, errvalue.New(errvalue.PhaseHost, errvalue.KindCorruptHeap).Detail("truncated snapshot section length").Build()
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errvalue.New(errvalue.PhaseHost, errvalue.KindCorruptHeap).Detail("truncated snapshot section").Build()
	}
	return buf, nil
}

func compress(data []byte) []byte {
	enc := encoderPool.Get().(*zstd.Encoder)
	defer encoderPool.Put(enc)
	return enc.EncodeAll(data, nil)
}

func decompress(data []byte) ([]byte, error) {
	dec := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(dec)
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, errvalue.New(errvalue.PhaseHost, errvalue.KindCorruptHeap).Detail("zstd decode failed").Cause(err).Build()
	}
	return out, nil
}

// InternLiterals re-interns every literal in b through table, per spec.md
// §6.4: "deserialized bytecode references to strings are re-interned
// through §4.D at load time; no raw CP from the snapshot is valid
// directly in memory." The returned slice is indexed identically to
// b.Literals, so a loader can remap any literal-index bytecode operand to
// values[i] directly.
func InternLiterals(a *heap.Arena, table *strs.Table, b Blob) ([]value.Value, error) {
	values := make([]value.Value, len(b.Literals))
	for i, lit := range b.Literals {
		v, err := table.Intern(a, lit)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}
