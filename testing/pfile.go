package testing

import (
	"bytes"
	"encoding/binary"
)

// PFileBuilder assembles a .p record stream in memory. All methods return the
// builder so calls can be chained:
//
//	data := NewPFile().Segment(0x01, 0, code).End().Bytes()
type PFileBuilder struct {
	buffer bytes.Buffer
}

// NewPFile starts a stream with the correct signature bytes.
func NewPFile() *PFileBuilder {
	return NewPFileWithMagic(0x89, 0x14)
}

// NewPFileWithMagic starts a stream with arbitrary signature bytes.
func NewPFileWithMagic(first, second byte) *PFileBuilder {
	builder := &PFileBuilder{}
	builder.buffer.Write([]byte{first, second})
	return builder
}

// Segment appends an extended (0x81) record for a byte-granular code segment.
// The length field is taken from the payload.
func (b *PFileBuilder) Segment(cpu byte, start int32, payload []byte) *PFileBuilder {
	return b.Record([]byte{0x81, cpu, 0x01, 0x01}, start, uint16(len(payload)), payload)
}

// PlainSegment appends a record whose header byte is the CPU type itself.
func (b *PFileBuilder) PlainSegment(cpu byte, start int32, payload []byte) *PFileBuilder {
	return b.Record([]byte{cpu}, start, uint16(len(payload)), payload)
}

// Record appends an arbitrary record: the raw header bytes, the start address
// and length fields, and then the payload. Nothing is validated, so this can
// produce malformed streams.
func (b *PFileBuilder) Record(
	header []byte, start int32, length uint16, payload []byte,
) *PFileBuilder {
	b.buffer.Write(header)
	binary.Write(&b.buffer, binary.LittleEndian, start)
	binary.Write(&b.buffer, binary.LittleEndian, length)
	b.buffer.Write(payload)
	return b
}

// EntryPoint appends an entry point record.
func (b *PFileBuilder) EntryPoint(address uint32) *PFileBuilder {
	b.buffer.Write([]byte{0x80, byte(address), byte(address >> 8), byte(address >> 16)})
	return b
}

// Raw appends bytes as-is.
func (b *PFileBuilder) Raw(data ...byte) *PFileBuilder {
	b.buffer.Write(data)
	return b
}

// End appends the terminating record.
func (b *PFileBuilder) End() *PFileBuilder {
	b.buffer.WriteByte(0x00)
	return b
}

// Bytes returns a copy of the stream built so far.
func (b *PFileBuilder) Bytes() []byte {
	return bytes.Clone(b.buffer.Bytes())
}

// Reader returns a reader over a copy of the stream built so far.
func (b *PFileBuilder) Reader() *bytes.Reader {
	return bytes.NewReader(b.Bytes())
}
