// Package modelstore reads, writes and serves CRF model files.
//
// File layout (all integers little-endian):
//
//	magic    [8]byte  "CITEMODL"
//	format   uint16
//	schema   uint16
//	checksum [32]byte BLAKE2b-256 of format, schema, weights and payload
//	weights  uint64   number of float64 weights in the payload
//	payload:
//	  transition weights, then emission weights (float64)
//	  label table       uint16 count, then uint16-prefixed names
//	  feature dictionary uint32 count, then uint16-prefixed names
//	  name, version     uint16-prefixed strings
//	  forbidden         uint8 flag, then one byte per transition when set
package modelstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"

	"github.com/matsen/citeparse/internal/crf"
	"github.com/matsen/citeparse/internal/feature"
	"github.com/matsen/citeparse/internal/label"
)

// ErrCorruptModel is returned when a model file fails its checksum or cannot
// be parsed.
var ErrCorruptModel = errors.New("corrupt model")

const (
	// FormatVersion is the current file layout version.
	FormatVersion = 1

	magic      = "CITEMODL"
	headerSize = len(magic) + 2 + 2 + blake2b.Size256 + 8

	// readChunk bounds how much is read between context checks.
	readChunk = 256 << 10
)

var le = binary.LittleEndian

// Header is the fixed-size preamble of a model file.
type Header struct {
	Format   uint16
	Schema   uint16
	Checksum [blake2b.Size256]byte
	Weights  uint64
}

// Encode serialises m.
func Encode(m *crf.Model) []byte {
	p := m.Params()

	var payload bytes.Buffer
	for _, w := range p.Transition {
		binary.Write(&payload, le, math.Float64bits(w))
	}
	for _, w := range p.Emission {
		binary.Write(&payload, le, math.Float64bits(w))
	}

	binary.Write(&payload, le, uint16(label.Count))
	for _, l := range label.All() {
		writeString(&payload, l.String())
	}
	binary.Write(&payload, le, uint32(len(p.Features)))
	for _, f := range p.Features {
		writeString(&payload, f)
	}
	writeString(&payload, p.Name)
	writeString(&payload, p.Version)

	if p.Forbidden == nil {
		payload.WriteByte(0)
	} else {
		payload.WriteByte(1)
		for _, f := range p.Forbidden {
			if f {
				payload.WriteByte(1)
			} else {
				payload.WriteByte(0)
			}
		}
	}

	h := Header{Format: FormatVersion, Schema: uint16(p.Schema), Weights: uint64(p.WeightCount())}
	h.Checksum = checksum(h, payload.Bytes())

	out := make([]byte, 0, headerSize+payload.Len())
	out = append(out, magic...)
	out = le.AppendUint16(out, h.Format)
	out = le.AppendUint16(out, h.Schema)
	out = append(out, h.Checksum[:]...)
	out = le.AppendUint64(out, h.Weights)
	return append(out, payload.Bytes()...)
}

// checksum hashes every header field except the checksum itself, then the
// payload.
func checksum(h Header, payload []byte) [blake2b.Size256]byte {
	d, _ := blake2b.New256(nil)
	var fields [12]byte
	le.PutUint16(fields[0:], h.Format)
	le.PutUint16(fields[2:], h.Schema)
	le.PutUint64(fields[4:], h.Weights)
	d.Write(fields[:])
	d.Write(payload)

	var sum [blake2b.Size256]byte
	d.Sum(sum[:0])
	return sum
}

func writeString(w *bytes.Buffer, s string) {
	if len(s) > math.MaxUint16 {
		s = s[:math.MaxUint16]
	}
	binary.Write(w, le, uint16(len(s)))
	w.WriteString(s)
}

// ReadHeader parses the fixed header without verifying the payload.
func ReadHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < headerSize {
		return h, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorruptModel, len(data))
	}
	if string(data[:len(magic)]) != magic {
		return h, fmt.Errorf("%w: bad magic", ErrCorruptModel)
	}
	off := len(magic)
	h.Format = le.Uint16(data[off:])
	h.Schema = le.Uint16(data[off+2:])
	copy(h.Checksum[:], data[off+4:])
	h.Weights = le.Uint64(data[off+4+blake2b.Size256:])
	if h.Format != FormatVersion {
		return h, fmt.Errorf("%w: unsupported format version %d", ErrCorruptModel, h.Format)
	}
	return h, nil
}

// Decode parses a model file. It fails with ErrCorruptModel when the
// checksum does not match or the payload is malformed, and with
// crf.ErrModelMismatch when the label table differs from this build's.
func Decode(data []byte) (*crf.Model, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	payload := data[headerSize:]
	if checksum(h, payload) != h.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptModel)
	}

	r := &reader{buf: payload}
	if h.Weights < uint64(crf.TransitionLen) || h.Weights > uint64(len(payload)/8) {
		return nil, fmt.Errorf("%w: implausible weight count %d", ErrCorruptModel, h.Weights)
	}
	weights := make([]float64, h.Weights)
	for i := range weights {
		weights[i] = math.Float64frombits(r.u64())
	}

	nl := int(r.u16())
	names := make([]string, nl)
	for i := range names {
		names[i] = r.str()
	}
	nf := int(r.u32())
	if nf > len(payload) {
		return nil, fmt.Errorf("%w: implausible feature count %d", ErrCorruptModel, nf)
	}
	features := make([]string, nf)
	for i := range features {
		features[i] = r.str()
	}
	p := crf.Params{
		Name:       r.str(),
		Version:    r.str(),
		Schema:     int(h.Schema),
		Features:   features,
		Transition: weights[:crf.TransitionLen],
		Emission:   weights[crf.TransitionLen:],
	}
	if r.u8() == 1 {
		p.Forbidden = make([]bool, crf.TransitionLen)
		for i := range p.Forbidden {
			p.Forbidden[i] = r.u8() == 1
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, r.err)
	}
	if r.off != len(payload) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptModel, len(payload)-r.off)
	}

	if err := checkLabels(names); err != nil {
		return nil, err
	}
	m, err := crf.New(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	return m, nil
}

func checkLabels(names []string) error {
	all := label.All()
	if len(names) != len(all) {
		return fmt.Errorf("%w: model has %d labels, expected %d", crf.ErrModelMismatch, len(names), len(all))
	}
	for i, l := range all {
		if names[i] != l.String() {
			return fmt.Errorf("%w: label %d is %q, expected %q", crf.ErrModelMismatch, i, names[i], l)
		}
	}
	return nil
}

// reader consumes the payload, recording the first overrun.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return le.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return le.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return le.Uint64(b)
	}
	return 0
}

func (r *reader) str() string {
	return string(r.take(int(r.u16())))
}

// Save writes m to path through a synced temp file and rename, so readers
// never see a partial file.
func Save(path string, m *crf.Model) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating model directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tmp.Write(Encode(m)); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("setting model permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	success = true
	syncDir(dir)
	return nil
}

// syncDir makes the rename durable. Not every platform can sync a
// directory, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

// Load reads and decodes the model at path. Reading stops when ctx is done.
// Models built against a different feature schema are rejected with
// crf.ErrModelMismatch.
func Load(ctx context.Context, path string) (*crf.Model, error) {
	data, err := readFile(ctx, path)
	if err != nil {
		return nil, err
	}
	m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if m.Schema() != feature.SchemaVersion {
		return nil, fmt.Errorf("loading %s: %w: model uses feature schema %d, this build extracts %d",
			path, crf.ErrModelMismatch, m.Schema(), feature.SchemaVersion)
	}
	return m, nil
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening model: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	if info, err := f.Stat(); err == nil {
		buf.Grow(int(info.Size()))
	}
	chunk := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		n, err := f.Read(chunk)
		buf.Write(chunk[:n])
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading model: %w", err)
		}
	}
}
