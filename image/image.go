// Package image provides an in-memory ROM image that data can be written into
// at arbitrary addresses, in any order.
//
// Writing past the end of the image grows it, filling any gap with null bytes
// just like a sparse file would. The image also remembers which bytes have
// actually been written, so callers can find the gaps between segments and
// tell how much data was overwritten by later segments.

package image

import (
	"fmt"
	"io"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/fdp2bin"
)

// DefaultLimit is the default maximum size of an image, in bytes. It's far
// larger than any cartridge ROM, and mostly exists to catch garbage start
// addresses before we try allocating gigabytes of memory.
const DefaultLimit = 64 * 1024 * 1024

// Range is a half-open range of addresses, [Start, End).
type Range struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 {
	return r.End - r.Start
}

// Image is an [io.WriteSeeker] backed by a growable byte slice.
type Image struct {
	data        []byte
	written     bitmap.Bitmap
	position    int64
	overwritten int64
	limit       int64
}

// New creates an empty image that can grow up to [DefaultLimit] bytes.
func New() *Image {
	return NewWithLimit(DefaultLimit)
}

// NewWithLimit creates an empty image that can grow up to `limit` bytes.
func NewWithLimit(limit int64) *Image {
	return &Image{
		written: bitmap.New(0),
		limit:   limit,
	}
}

// Size returns the size of the image, i.e. the address just past the last byte
// written. Seeking past the end doesn't change the size until something is
// written there.
func (img *Image) Size() int64 {
	return int64(len(img.data))
}

// Bytes returns the image's contents. The slice points to the image's storage
// and is only valid until the next write.
func (img *Image) Bytes() []byte {
	return img.data
}

// WriteTo writes the entire image to `output`. It implements [io.WriterTo].
func (img *Image) WriteTo(output io.Writer) (int64, error) {
	n, err := output.Write(img.data)
	return int64(n), err
}

// grow ensures that the image is at least `size` bytes. New bytes are null and
// are marked as not written.
func (img *Image) grow(size int64) error {
	if size <= int64(len(img.data)) {
		return nil
	}
	if size > img.limit {
		return fdp2bin.ErrIOFailed.WithMessage(
			fmt.Sprintf(
				"image can't grow to %d bytes; limit is %d", size, img.limit))
	}

	if size <= int64(cap(img.data)) {
		// Everything between len and cap is still zeroed since we never shrink.
		img.data = img.data[:size]
		return nil
	}

	newCapacity := int64(cap(img.data)) * 2
	if newCapacity < size {
		newCapacity = size
	}
	if newCapacity > img.limit {
		newCapacity = img.limit
	}

	newData := make([]byte, size, newCapacity)
	copy(newData, img.data)

	// The bitmap always covers the full capacity so that growing within the
	// capacity doesn't need to touch it.
	newWritten := bitmap.New(int(newCapacity))
	copy(newWritten, img.written)

	img.data = newData
	img.written = newWritten
	return nil
}

// Write copies `buffer` into the image at the current position, growing the
// image if needed, and advances the position. It implements [io.Writer].
func (img *Image) Write(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	end := img.position + int64(len(buffer))
	err := img.grow(end)
	if err != nil {
		return 0, err
	}

	for i := range buffer {
		address := int(img.position) + i
		if img.written.Get(address) {
			img.overwritten++
		} else {
			img.written.Set(address, true)
		}
	}

	copy(img.data[img.position:end], buffer)
	img.position = end
	return len(buffer), nil
}

// Seek sets the position for the next write. It implements [io.Seeker].
// Positions past the end of the image are allowed; seeking to a negative
// position is not.
func (img *Image) Seek(offset int64, whence int) (int64, error) {
	var newPosition int64

	switch whence {
	case io.SeekStart:
		newPosition = offset
	case io.SeekCurrent:
		newPosition = img.position + offset
	case io.SeekEnd:
		newPosition = img.Size() + offset
	default:
		return img.position, fdp2bin.ErrIOFailed.WithMessage(
			fmt.Sprintf("invalid value for `whence`: %d", whence))
	}

	if newPosition < 0 {
		return img.position, fdp2bin.ErrIOFailed.WithMessage(
			fmt.Sprintf("can't seek to negative position %d", newPosition))
	}
	img.position = newPosition
	return newPosition, nil
}

// Covered returns true if the byte at `address` has been written at least
// once.
func (img *Image) Covered(address int64) bool {
	if address < 0 || address >= img.Size() {
		return false
	}
	return img.written.Get(int(address))
}

// Overwritten returns the total number of times a byte was written to an
// address that had already been written to.
func (img *Image) Overwritten() int64 {
	return img.overwritten
}

// Gaps returns the ranges of the image that have never been written to, in
// ascending order. Space past the end of the image isn't counted.
func (img *Image) Gaps() []Range {
	var gaps []Range
	size := img.Size()

	for address := int64(0); address < size; {
		if img.written.Get(int(address)) {
			address++
			continue
		}

		start := address
		for address < size && !img.written.Get(int(address)) {
			address++
		}
		gaps = append(gaps, Range{Start: start, End: address})
	}
	return gaps
}
