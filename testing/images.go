package testing

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// NewFixedImage returns a zero-filled, seekable stream of exactly `size` bytes
// to convert into. Writing past the end of it is an error, which keeps tests
// from silently growing the image.
func NewFixedImage(t *testing.T, size int) io.ReadWriteSeeker {
	require.Greater(t, size, 0, "image size must be positive")
	return bytesextra.NewReadWriteSeeker(make([]byte, size))
}

// ReadImage rewinds `stream` and returns its first `size` bytes. The stream's
// position is undefined afterwards.
func ReadImage(t *testing.T, stream io.ReadSeeker, size int) []byte {
	_, err := stream.Seek(0, io.SeekStart)
	require.NoError(t, err, "failed to rewind image")

	contents := make([]byte, size)
	_, err = io.ReadFull(stream, contents)
	require.NoErrorf(t, err, "failed to read %d bytes back from image", size)
	return contents
}
