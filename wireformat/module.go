// Package wireformat defines the persisted layout of compiled modules:
//
//	version   uint32 LE
//	depCount  uint32 LE, then depCount NUL-terminated paths
//	pragmas   uint32 LE, then that many "tag\0text\0" pairs
//	unit      raw compiled unit bytes up to the end
package wireformat

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/domain/errors"
)

// MaxListLen bounds the dependency and pragma counts accepted when decoding.
const MaxListLen = 1 << 16

const headerSize = 4

// EncodeModule serializes a module record.
func EncodeModule(rec *entities.ModuleRecord) ([]byte, error) {
	if len(rec.Dependencies) > MaxListLen || len(rec.Pragmas) > MaxListLen {
		return nil, wireErr("encode", fmt.Errorf("%d dependencies and %d pragmas exceed limit %d",
			len(rec.Dependencies), len(rec.Pragmas), MaxListLen))
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + len(rec.Unit) + 64)

	var word [4]byte
	putUint32 := func(v uint32) {
		binary.LittleEndian.PutUint32(word[:], v)
		buf.Write(word[:])
	}
	putString := func(s string) error {
		if bytes.IndexByte([]byte(s), 0) >= 0 {
			return fmt.Errorf("string %q contains NUL", s)
		}
		buf.WriteString(s)
		buf.WriteByte(0)
		return nil
	}

	putUint32(rec.Version)
	putUint32(uint32(len(rec.Dependencies))) //nolint:gosec // G115: bounded by MaxListLen
	for _, dep := range rec.Dependencies {
		if err := putString(dep); err != nil {
			return nil, wireErr("encode", err)
		}
	}
	putUint32(uint32(len(rec.Pragmas))) //nolint:gosec // G115: bounded by MaxListLen
	for _, p := range rec.Pragmas {
		if err := putString(p.Tag); err != nil {
			return nil, wireErr("encode", err)
		}
		if err := putString(p.Text); err != nil {
			return nil, wireErr("encode", err)
		}
	}
	buf.Write(rec.Unit)
	return buf.Bytes(), nil
}

// DecodeModule parses data produced by EncodeModule.
func DecodeModule(name string, data []byte) (*entities.ModuleRecord, error) {
	r := reader{data: data}
	rec := &entities.ModuleRecord{Name: name}

	var err error
	if rec.Version, err = r.uint32(); err != nil {
		return nil, wireErr("decode", fmt.Errorf("version: %w", err))
	}

	depCount, err := r.count()
	if err != nil {
		return nil, wireErr("decode", fmt.Errorf("dependency count: %w", err))
	}
	for i := 0; i < depCount; i++ {
		dep, err := r.cstring()
		if err != nil {
			return nil, wireErr("decode", fmt.Errorf("dependency %d: %w", i, err))
		}
		rec.Dependencies = append(rec.Dependencies, dep)
	}

	pragmaCount, err := r.count()
	if err != nil {
		return nil, wireErr("decode", fmt.Errorf("pragma count: %w", err))
	}
	for i := 0; i < pragmaCount; i++ {
		tag, err := r.cstring()
		if err != nil {
			return nil, wireErr("decode", fmt.Errorf("pragma %d tag: %w", i, err))
		}
		text, err := r.cstring()
		if err != nil {
			return nil, wireErr("decode", fmt.Errorf("pragma %d text: %w", i, err))
		}
		rec.Pragmas = append(rec.Pragmas, entities.PragmaInvocation{Tag: tag, Text: text})
	}

	rec.Unit = append([]byte(nil), r.data[r.off:]...)
	return rec, nil
}

// PeekVersion returns the version stamp without decoding the rest.
func PeekVersion(data []byte) (uint32, error) {
	if len(data) < headerSize {
		return 0, wireErr("decode", fmt.Errorf("short header: %d bytes", len(data)))
	}
	return binary.LittleEndian.Uint32(data), nil
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) uint32() (uint32, error) {
	if len(r.data)-r.off < 4 {
		return 0, fmt.Errorf("unexpected end of data at offset %d", r.off)
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) count() (int, error) {
	n, err := r.uint32()
	if err != nil {
		return 0, err
	}
	if n > MaxListLen {
		return 0, fmt.Errorf("count %d exceeds limit %d", n, MaxListLen)
	}
	return int(n), nil
}

func (r *reader) cstring() (string, error) {
	end := bytes.IndexByte(r.data[r.off:], 0)
	if end < 0 {
		return "", fmt.Errorf("unterminated string at offset %d", r.off)
	}
	s := string(r.data[r.off : r.off+end])
	r.off += end + 1
	return s, nil
}

func wireErr(op string, err error) error {
	return &errors.WireFormatError{Operation: op, Type: "module", Err: err}
}
