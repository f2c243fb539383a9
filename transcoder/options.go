package transcoder

import (
	"github.com/dargueta/fdp2bin/pfile"
	"go.uber.org/zap"
)

// DefaultChunkSize is the size of the buffer used to copy uncompressed
// segments. It has no effect on the output.
const DefaultChunkSize = 4096

// Options configures [Convert]. Start from [DefaultOptions] and change what you
// need; the zero value is not useful.
type Options struct {
	// CompressedCPU is the CPU type of the segment to compress. Only a segment
	// of this type with a start address of 0 is compressed.
	CompressedCPU pfile.CPUType

	// OverlapLeeway is how many bytes a segment may overlap the end of the
	// previous one before a warning is logged. Code that patches instructions
	// in place overlaps by a few bytes on purpose.
	OverlapLeeway int64

	// ChunkSize is the size of the copy buffer. Values <= 0 mean
	// [DefaultChunkSize].
	ChunkSize int

	// Logger receives warnings and diagnostics. nil means nothing is logged.
	Logger *zap.Logger
}

// DefaultOptions returns the options the sound driver build expects: compress
// the Z80 segment and allow three bytes of overlap.
func DefaultOptions() *Options {
	return &Options{
		CompressedCPU: pfile.CPUZ80,
		OverlapLeeway: 3,
		ChunkSize:     DefaultChunkSize,
		Logger:        zap.NewNop(),
	}
}

// normalize returns a copy of `options` with unset fields given usable
// values. A nil argument gives [DefaultOptions].
func normalize(options *Options) *Options {
	if options == nil {
		return DefaultOptions()
	}

	normalized := *options
	if normalized.ChunkSize <= 0 {
		normalized.ChunkSize = DefaultChunkSize
	}
	if normalized.Logger == nil {
		normalized.Logger = zap.NewNop()
	}
	return &normalized
}
