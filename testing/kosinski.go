package testing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// DecompressKosinski is a straightforward Kosinski decompressor that mirrors
// what the console-side routine does. It's only used to check the encoder.
//
// Decompression stops at the end-of-stream marker; trailing bytes are ignored.
// Running out of input before the marker, or a match reaching back past the
// start of the output, is an error.
func DecompressKosinski(compressed []byte) ([]byte, error) {
	source := bytes.NewReader(compressed)
	output := make([]byte, 0, len(compressed)*4)

	var field uint16
	bitsLeft := 0

	loadField := func() error {
		var raw [2]byte
		if _, err := io.ReadFull(source, raw[:]); err != nil {
			return fmt.Errorf(
				"%w: description field at offset %d",
				io.ErrUnexpectedEOF,
				len(compressed)-source.Len(),
			)
		}
		field = binary.LittleEndian.Uint16(raw[:])
		bitsLeft = 16
		return nil
	}

	// The next field is fetched as soon as the last bit of the current one is
	// consumed, not when the next bit is needed.
	nextBit := func() (bool, error) {
		bit := field&1 != 0
		field >>= 1
		bitsLeft--
		if bitsLeft == 0 {
			if err := loadField(); err != nil {
				return false, err
			}
		}
		return bit, nil
	}

	nextByte := func() (byte, error) {
		value, err := source.ReadByte()
		if err != nil {
			return 0, fmt.Errorf(
				"%w: data byte after %d bytes of output", io.ErrUnexpectedEOF, len(output))
		}
		return value, nil
	}

	if err := loadField(); err != nil {
		return nil, err
	}

	for {
		isLiteral, err := nextBit()
		if err != nil {
			return nil, err
		}
		if isLiteral {
			value, err := nextByte()
			if err != nil {
				return nil, err
			}
			output = append(output, value)
			continue
		}

		isFullMatch, err := nextBit()
		if err != nil {
			return nil, err
		}

		var distance, count int
		if !isFullMatch {
			high, err := nextBit()
			if err != nil {
				return nil, err
			}
			low, err := nextBit()
			if err != nil {
				return nil, err
			}
			count = 2
			if high {
				count += 2
			}
			if low {
				count++
			}

			offset, err := nextByte()
			if err != nil {
				return nil, err
			}
			distance = 0x100 - int(offset)
		} else {
			low, err := nextByte()
			if err != nil {
				return nil, err
			}
			high, err := nextByte()
			if err != nil {
				return nil, err
			}
			distance = 0x2000 - ((int(high&0xf8) << 5) | int(low))

			count = int(high & 0x07)
			if count != 0 {
				count += 2
			} else {
				extra, err := nextByte()
				if err != nil {
					return nil, err
				}
				if extra == 0 {
					return output, nil
				} else if extra == 1 {
					continue
				}
				count = int(extra) + 1
			}
		}

		if distance > len(output) {
			return nil, fmt.Errorf(
				"match reaches %d bytes back but only %d bytes were decoded",
				distance,
				len(output),
			)
		}
		for i := 0; i < count; i++ {
			output = append(output, output[len(output)-distance])
		}
	}
}

// RequireKosinskiRoundTrip decompresses `compressed` and fails the test
// immediately if that fails or doesn't give back `original`.
func RequireKosinskiRoundTrip(t *testing.T, original, compressed []byte) {
	decompressed, err := DecompressKosinski(compressed)
	require.NoError(t, err, "compressed stream is invalid")
	require.Equal(t, len(original), len(decompressed), "decompressed data length is wrong")
	require.Equal(t, original, decompressed, "decompressed data is wrong")
}
