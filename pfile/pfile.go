// Package pfile reads ".p" object files, the output format of the AS macro
// assembler.
//
// A .p file is a two-byte signature followed by a series of records. Each
// record starts with a header byte:
//
//   - 0x00 ends the file.
//   - 0x80 is an entry point record; three bytes of address follow.
//   - 0x81 is an extended segment record. Three bytes follow giving the CPU
//     type, the segment type, and the granularity (bytes per address unit).
//   - Anything less than 0x80 is a code segment record, and the header byte is
//     the CPU type itself.
//   - Everything above 0x81 is invalid.
//
// Segment records then have a 32-bit start address and a 16-bit length, then
// the segment data. All integers are little endian, regardless of the CPU.

package pfile

import (
	"fmt"
)

// Signature bytes at the beginning of every .p file.
const (
	MagicByte0 = 0x89
	MagicByte1 = 0x14
)

// Record header bytes with special meanings. Everything else below
// HeaderEntryPoint is a CPU type.
const (
	HeaderEnd        = 0x00
	HeaderEntryPoint = 0x80
	HeaderExtended   = 0x81
)

// CPUType identifies the processor a segment was assembled for.
type CPUType byte

const (
	CPU68000 CPUType = 0x01
	CPUZ80   CPUType = 0x51
)

func (cpu CPUType) String() string {
	switch cpu {
	case CPU68000:
		return "68000"
	case CPUZ80:
		return "Z80"
	default:
		return fmt.Sprintf("$%02X", byte(cpu))
	}
}

// SegmentType is the assembler segment a record's data came from.
type SegmentType byte

const (
	SegmentUndefined SegmentType = iota
	SegmentCode
	SegmentData
	SegmentIData
	SegmentXData
	SegmentYData
	SegmentBData
	SegmentIO
	SegmentReg
	SegmentROMData
)

var segmentTypeNames = [...]string{
	"undefined", "code", "data", "idata", "xdata", "ydata", "bdata", "io", "reg", "romdata",
}

func (segmentType SegmentType) String() string {
	if int(segmentType) < len(segmentTypeNames) {
		return segmentTypeNames[segmentType]
	}
	return fmt.Sprintf("$%02X", byte(segmentType))
}

// Segment is the header of a single segment record. The data itself is read
// through [Reader.Read].
type Segment struct {
	// Index is the number of segment records that came before this one. Entry
	// point records aren't counted.
	Index  int
	Header byte
	CPU    CPUType
	Type   SegmentType
	// Granularity is always 1; the reader rejects anything else.
	Granularity byte
	Start       int32
	Length      uint16
}

// End returns the address just past the last byte of the segment.
func (s Segment) End() int64 {
	return int64(s.Start) + int64(s.Length)
}
