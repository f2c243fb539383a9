package pfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dargueta/fdp2bin"
)

// Reader reads segment records one at a time, in the same spirit as
// [archive/tar.Reader]: [Reader.Next] moves to the next segment, and
// [Reader.Read] reads that segment's data.
type Reader struct {
	rd        *bufio.Reader
	remaining int64
	segments  int
}

// NewReader creates a Reader. The signature isn't read until
// [Reader.ReadMagic] is called.
func NewReader(input io.Reader) *Reader {
	return &Reader{rd: bufio.NewReader(input)}
}

// truncated converts an error hit in the middle of a record into the error we
// return to the caller. Hitting EOF here means the file was cut short.
func truncated(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fdp2bin.ErrTruncatedRecord.WithMessage(what).Wrap(io.ErrUnexpectedEOF)
	}
	return fdp2bin.ErrIOFailed.Wrap(err)
}

// ReadMagic reads the two signature bytes at the beginning of the file and
// returns them. It doesn't check them; a bad signature is usually harmless,
// so it's up to the caller what to do about it.
func (reader *Reader) ReadMagic() ([2]byte, error) {
	var magic [2]byte
	_, err := io.ReadFull(reader.rd, magic[:])
	if err != nil {
		return magic, truncated(err, "file signature")
	}
	return magic, nil
}

// Next skips whatever is left of the current segment's data and reads the
// header of the next segment record. Entry point records are skipped.
//
// It returns [io.EOF] when it hits the end record, or if the input ends right
// where a record would begin.
func (reader *Reader) Next() (Segment, error) {
	if reader.remaining > 0 {
		n, err := io.CopyN(io.Discard, reader.rd, reader.remaining)
		reader.remaining -= n
		if err != nil {
			return Segment{}, truncated(
				err, fmt.Sprintf("data of segment %d", reader.segments-1))
		}
	}

	for {
		header, err := reader.rd.ReadByte()
		if err == io.EOF {
			return Segment{}, io.EOF
		} else if err != nil {
			return Segment{}, fdp2bin.ErrIOFailed.Wrap(err)
		}

		segment := Segment{
			Index:       reader.segments,
			Header:      header,
			Type:        SegmentCode,
			Granularity: 1,
		}

		switch {
		case header == HeaderEnd:
			return Segment{}, io.EOF
		case header == HeaderEntryPoint:
			_, err = reader.rd.Discard(3)
			if err != nil {
				return Segment{}, truncated(err, "entry point record")
			}
			continue
		case header == HeaderExtended:
			var fields [3]byte
			_, err = io.ReadFull(reader.rd, fields[:])
			if err != nil {
				return Segment{}, truncated(
					err, fmt.Sprintf("header of segment %d", segment.Index))
			}
			segment.CPU = CPUType(fields[0])
			segment.Type = SegmentType(fields[1])
			segment.Granularity = fields[2]
			if segment.Granularity != 1 {
				return Segment{}, fdp2bin.ErrUnsupportedGranularity.WithMessage(
					fmt.Sprintf("%d in segment %d", segment.Granularity, segment.Index))
			}
		case header > HeaderExtended:
			return Segment{}, fdp2bin.ErrUnsupportedHeader.WithMessage(
				fmt.Sprintf("$%02X", header))
		default:
			segment.CPU = CPUType(header)
		}

		// Integers in AS .p files are always little endian.
		var fields [6]byte
		_, err = io.ReadFull(reader.rd, fields[:])
		if err != nil {
			return Segment{}, truncated(
				err, fmt.Sprintf("address of segment %d", segment.Index))
		}
		segment.Start = int32(binary.LittleEndian.Uint32(fields[0:4]))
		segment.Length = binary.LittleEndian.Uint16(fields[4:6])

		if segment.Length == 0 {
			return Segment{}, fdp2bin.ErrZeroLength.WithMessage(
				fmt.Sprintf("segment %d at $%X", segment.Index, segment.Start))
		}
		if segment.Start < 0 {
			return Segment{}, fdp2bin.ErrNegativeStart.WithMessage(
				fmt.Sprintf("segment %d at $%08X", segment.Index, uint32(segment.Start)))
		}

		reader.remaining = int64(segment.Length)
		reader.segments++
		return segment, nil
	}
}

// Read reads the data of the current segment. It returns [io.EOF] once all of
// it has been read. If the file ends before that, it fails with
// [fdp2bin.ErrTruncatedRecord].
func (reader *Reader) Read(buffer []byte) (int, error) {
	if reader.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(buffer)) > reader.remaining {
		buffer = buffer[:reader.remaining]
	}

	n, err := reader.rd.Read(buffer)
	reader.remaining -= int64(n)
	if err == io.EOF && reader.remaining > 0 {
		return n, truncated(err, fmt.Sprintf("data of segment %d", reader.segments-1))
	} else if err != nil && err != io.EOF {
		return n, fdp2bin.ErrIOFailed.Wrap(err)
	}
	return n, nil
}

// Remaining returns the number of bytes of the current segment's data that
// haven't been read yet.
func (reader *Reader) Remaining() int64 {
	return reader.remaining
}
