// Package transcoder turns a .p object file into a flat ROM image.
//
// Every segment in the object file is copied to the image at its start
// address, with one exception: the Z80 sound driver. It's assembled at
// address 0 of the Z80's own address space, so its start address says nothing
// about where it belongs in the ROM. Instead it's compressed with Kosinski and
// placed directly after the segment before it. The 68000 code that follows
// reserves a guessed amount of space for it, so if the compressed driver turns
// out bigger than that guess, the conversion fails and reports the size that
// would have been needed.

package transcoder

import (
	"fmt"
	"io"

	"github.com/dargueta/fdp2bin"
	"github.com/dargueta/fdp2bin/pfile"
	"github.com/dargueta/fdp2bin/utilities/compression"
	"go.uber.org/zap"
)

// Placement describes where a segment ended up in the output image.
type Placement struct {
	// Index is the segment's position among the segment records of the input.
	Index  int
	Header byte
	CPU    pfile.CPUType
	Type   pfile.SegmentType
	// Start is the address in the image the segment was written to. For the
	// compressed segment this is not the address from the input.
	Start int64
	// Length is the size of the segment's data in the input.
	Length int
	// StoredLength is the number of bytes written to the image. It only
	// differs from Length for the compressed segment.
	StoredLength int
	Compressed   bool
}

// End returns the address just past the last byte written for this segment.
func (p Placement) End() int64 {
	return p.Start + int64(p.StoredLength)
}

// Result is what a successful conversion reports back.
type Result struct {
	// CompressedLength is the size of the compressed segment, or 0 if there
	// was none.
	CompressedLength int
	// Segments lists every segment placed, in input order.
	Segments []Placement
}

type segmentKind int

const (
	segmentRaw segmentKind = iota
	segmentCompressed
)

// cursor holds everything the conversion needs to remember about the segments
// it has already placed.
type cursor struct {
	lastStart             int64
	lastLength            int64
	lastSegmentCompressed bool
	compressedPlaced      bool
	compressedLength      int
}

type converter struct {
	cursor
	reader  *pfile.Reader
	output  io.WriteSeeker
	options *Options
	logger  *zap.Logger
	scratch []byte
	result  Result
}

// Convert reads a .p object file from `input` and writes the ROM image to
// `output`. `options` may be nil to use [DefaultOptions].
//
// Writes happen at whatever addresses the segments say, in input order, so a
// later segment overwrites an earlier one where they overlap. Gaps are left to
// `output`; files and [image.Image] fill them with null bytes.
//
// If an error is returned, the output is incomplete and should be thrown away.
// All format problems wrap one of the fdp2bin.Err* sentinels.
func Convert(input io.Reader, output io.WriteSeeker, options *Options) (Result, error) {
	options = normalize(options)
	conv := converter{
		reader:  pfile.NewReader(input),
		output:  output,
		options: options,
		logger:  options.Logger,
		scratch: make([]byte, options.ChunkSize),
	}

	err := conv.run()
	conv.result.CompressedLength = conv.compressedLength
	return conv.result, err
}

func hexAddress(address int64) string {
	return fmt.Sprintf("$%X", address)
}

func (conv *converter) run() error {
	magic, err := conv.reader.ReadMagic()
	if err != nil {
		return err
	}
	if magic[0] != pfile.MagicByte0 {
		conv.logger.Warn(
			"first byte of a .p file should be $89",
			zap.String("found", fmt.Sprintf("$%02X", magic[0])))
	}
	if magic[1] != pfile.MagicByte1 {
		conv.logger.Warn(
			"second byte of a .p file should be $14",
			zap.String("found", fmt.Sprintf("$%02X", magic[1])))
	}

	for {
		segment, err := conv.reader.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		kind, err := conv.classify(segment)
		if err != nil {
			return err
		}

		switch kind {
		case segmentCompressed:
			err = conv.placeCompressed(segment)
		default:
			err = conv.placeRaw(segment)
		}
		if err != nil {
			return err
		}
	}
}

// classify decides whether a segment gets compressed, and rejects any attempt
// at a second compressed segment.
func (conv *converter) classify(segment pfile.Segment) (segmentKind, error) {
	if segment.CPU != conv.options.CompressedCPU {
		return segmentRaw, nil
	}

	if segment.Start != 0 {
		// A compressed-CPU segment right after the compressed one, at a
		// nonzero address, means the driver was split across segments.
		if conv.lastSegmentCompressed {
			return segmentRaw, fdp2bin.ErrSecondCompressedSegment.WithMessage(
				fmt.Sprintf(
					"the size must be < 65535 bytes; the offending new segment starts"+
						" at %s relative to the start of the compressed code",
					hexAddress(int64(segment.Start)),
				),
			)
		}
		return segmentRaw, nil
	}

	if conv.compressedPlaced {
		return segmentRaw, fdp2bin.ErrSecondCompressedSegment.WithMessage(
			fmt.Sprintf("segment %d is a second compressed segment", segment.Index))
	}
	return segmentCompressed, nil
}

func (conv *converter) seek(address int64) error {
	_, err := conv.output.Seek(address, io.SeekStart)
	if err != nil {
		return fdp2bin.ErrIOFailed.Wrap(err)
	}
	return nil
}

func (conv *converter) write(data []byte) error {
	n, err := conv.output.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fdp2bin.ErrIOFailed.Wrap(err)
	}
	return nil
}

// placeCompressed compresses the segment's data and writes it directly after
// the previous segment. The start address in the record is ignored.
func (conv *converter) placeCompressed(segment pfile.Segment) error {
	target := conv.lastStart + conv.lastLength

	data := make([]byte, segment.Length)
	_, err := io.ReadFull(conv.reader, data)
	if err != nil {
		return err
	}

	compressed := compression.EncodeKosinski(data)

	err = conv.seek(target)
	if err != nil {
		return err
	}
	err = conv.write(compressed)
	if err != nil {
		return err
	}

	conv.compressedLength = len(compressed)
	conv.lastSegmentCompressed = true
	conv.compressedPlaced = true

	conv.logger.Debug(
		"compressed segment",
		zap.Int("segment", segment.Index),
		zap.String("address", hexAddress(target)),
		zap.Int("uncompressed", len(data)),
		zap.Int("compressed", len(compressed)),
	)

	conv.result.Segments = append(conv.result.Segments, Placement{
		Index:        segment.Index,
		Header:       segment.Header,
		CPU:          segment.CPU,
		Type:         segment.Type,
		Start:        target,
		Length:       len(data),
		StoredLength: len(compressed),
		Compressed:   true,
	})
	return nil
}

// placeRaw checks the segment against the end of the previous one, then copies
// it to its start address.
func (conv *converter) placeRaw(segment pfile.Segment) error {
	start := int64(segment.Start)

	position, err := conv.output.Seek(0, io.SeekCurrent)
	if err != nil {
		return fdp2bin.ErrIOFailed.Wrap(err)
	}

	if !conv.lastSegmentCompressed {
		if start+conv.options.OverlapLeeway < position {
			conv.logger.Warn(
				"overlapping allocation detected",
				zap.Int("segment", segment.Index),
				zap.String("start", hexAddress(start)),
				zap.String("previous_end", hexAddress(position)),
			)
		}
	} else {
		// The space reserved for the compressed data must not be exceeded at
		// all, since whatever follows would overwrite the end of it.
		if start < position {
			return fdp2bin.ErrCompressedDoesNotFit.WithMessage(
				fmt.Sprintf(
					"please increase your value of Size_of_Snd_driver_guess to at"+
						" least $%X and try again",
					conv.compressedLength,
				),
			)
		}
		conv.logger.Info(
			"compressed driver size",
			zap.String("size", fmt.Sprintf("0x%X", conv.compressedLength)),
		)
	}

	conv.lastStart = start
	conv.lastLength = int64(segment.Length)
	conv.lastSegmentCompressed = false

	err = conv.seek(start)
	if err != nil {
		return err
	}

	for remaining := int(segment.Length); remaining > 0; {
		chunk := conv.scratch
		if remaining < len(chunk) {
			chunk = chunk[:remaining]
		}

		_, err = io.ReadFull(conv.reader, chunk)
		if err != nil {
			return err
		}
		err = conv.write(chunk)
		if err != nil {
			return err
		}
		remaining -= len(chunk)
	}

	conv.result.Segments = append(conv.result.Segments, Placement{
		Index:        segment.Index,
		Header:       segment.Header,
		CPU:          segment.CPU,
		Type:         segment.Type,
		Start:        start,
		Length:       int(segment.Length),
		StoredLength: int(segment.Length),
	})
	return nil
}
