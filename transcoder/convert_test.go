package transcoder_test

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/dargueta/fdp2bin"
	"github.com/dargueta/fdp2bin/image"
	"github.com/dargueta/fdp2bin/pfile"
	ft "github.com/dargueta/fdp2bin/testing"
	"github.com/dargueta/fdp2bin/transcoder"
	c "github.com/dargueta/fdp2bin/utilities/compression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestConvert__SingleSegment(t *testing.T) {
	stream := ft.NewPFile().
		Segment(0x01, 0, []byte{0xaa, 0xbb, 0xcc, 0xdd}).
		End().
		Reader()

	img := image.New()
	result, err := transcoder.Convert(stream, img, nil)
	require.NoError(t, err)

	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc, 0xdd}, img.Bytes())
	assert.Equal(t, 0, result.CompressedLength)
	require.Len(t, result.Segments, 1)
	assert.Equal(
		t,
		transcoder.Placement{
			Index:        0,
			Header:       0x81,
			CPU:          pfile.CPU68000,
			Type:         pfile.SegmentCode,
			Start:        0,
			Length:       4,
			StoredLength: 4,
		},
		result.Segments[0],
	)
}

func TestConvert__FixedSizeOutput(t *testing.T) {
	stream := ft.NewPFile().
		Segment(0x01, 2, []byte{1, 2}).
		Segment(0x01, 6, []byte{3, 4}).
		End().
		Reader()

	output := ft.NewFixedImage(t, 8)
	_, err := transcoder.Convert(stream, output, nil)
	require.NoError(t, err)

	assert.Equal(t, []byte{0, 0, 1, 2, 0, 0, 3, 4}, ft.ReadImage(t, output, 8))
}

func TestConvert__UnsupportedGranularity(t *testing.T) {
	stream := ft.NewPFile().
		Record([]byte{0x81, 0x01, 0x01, 0x02}, 0, 2, []byte{1, 2}).
		End().
		Reader()

	_, err := transcoder.Convert(stream, image.New(), nil)
	assert.ErrorIs(t, err, fdp2bin.ErrUnsupportedGranularity)
}

func TestConvert__CompressedOnly(t *testing.T) {
	driver := make([]byte, 100)
	stream := ft.NewPFile().Segment(0x51, 0, driver).End().Reader()

	img := image.New()
	result, err := transcoder.Convert(stream, img, nil)
	require.NoError(t, err)

	expected := c.EncodeKosinski(driver)
	assert.Equal(t, expected, img.Bytes())
	assert.Equal(t, len(expected), result.CompressedLength)

	require.Len(t, result.Segments, 1)
	assert.True(t, result.Segments[0].Compressed)
	assert.EqualValues(t, 0, result.Segments[0].Start)
	assert.Equal(t, 100, result.Segments[0].Length)
	assert.Equal(t, len(expected), result.Segments[0].StoredLength)

	ft.RequireKosinskiRoundTrip(t, driver, img.Bytes())
}

func TestConvert__OverlapWithinLeeway(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	options := transcoder.DefaultOptions()
	options.Logger = zap.New(core)

	stream := ft.NewPFile().
		Segment(0x01, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8}).
		Segment(0x01, 6, []byte{9, 10}).
		End().
		Reader()

	img := image.New()
	_, err := transcoder.Convert(stream, img, options)
	require.NoError(t, err)

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 9, 10}, img.Bytes())
	assert.Equal(t, 0, logs.FilterMessage("overlapping allocation detected").Len())
}

func TestConvert__OverlapWarning(t *testing.T) {
	tests := []struct {
		Name     string
		Leeway   int64
		Start    int32
		Expected int
	}{
		{"default leeway, exactly at limit", 3, 5, 0},
		{"default leeway, one past limit", 3, 4, 1},
		{"no leeway, adjacent", 0, 8, 0},
		{"no leeway, one byte", 0, 7, 1},
	}

	for _, test := range tests {
		t.Run(
			test.Name,
			func(t *testing.T) {
				core, logs := observer.New(zapcore.DebugLevel)
				options := transcoder.DefaultOptions()
				options.Logger = zap.New(core)
				options.OverlapLeeway = test.Leeway

				stream := ft.NewPFile().
					Segment(0x01, 0, bytes.Repeat([]byte{0x11}, 8)).
					Segment(0x01, test.Start, []byte{0x22}).
					End().
					Reader()

				img := image.New()
				_, err := transcoder.Convert(stream, img, options)
				require.NoError(t, err, "overlaps are never fatal")
				assert.Equal(
					t,
					test.Expected,
					logs.FilterMessage("overlapping allocation detected").Len(),
				)
				assert.Equal(t, byte(0x22), img.Bytes()[test.Start])
			},
		)
	}
}

// buildDriverStream makes a stream of a 68000 segment of `prefixLength` bytes
// at 0, the compressed driver, and another 68000 segment at `nextStart`.
func buildDriverStream(driver []byte, prefixLength int, nextStart int32) *bytes.Reader {
	return ft.NewPFile().
		Segment(0x01, 0, bytes.Repeat([]byte{0x4e}, prefixLength)).
		Segment(0x51, 0, driver).
		Segment(0x01, nextStart, []byte{0xde, 0xad}).
		End().
		Reader()
}

func TestConvert__CompressedFits(t *testing.T) {
	driver := bytes.Repeat([]byte("sound driver "), 20)
	compressed := c.EncodeKosinski(driver)
	nextStart := int32(4 + len(compressed))

	core, logs := observer.New(zapcore.InfoLevel)
	options := transcoder.DefaultOptions()
	options.Logger = zap.New(core)

	img := image.New()
	result, err := transcoder.Convert(buildDriverStream(driver, 4, nextStart), img, options)
	require.NoError(t, err)

	assert.Equal(t, len(compressed), result.CompressedLength)
	assert.Equal(t, compressed, img.Bytes()[4:nextStart])
	assert.Equal(t, []byte{0xde, 0xad}, img.Bytes()[nextStart:])
	assert.Equal(t, 1, logs.FilterMessage("compressed driver size").Len())

	require.Len(t, result.Segments, 3)
	assert.EqualValues(t, 4, result.Segments[1].Start)
	assert.EqualValues(t, nextStart, result.Segments[1].End())
}

func TestConvert__CompressedDoesNotFit(t *testing.T) {
	driver := bytes.Repeat([]byte("sound driver "), 20)
	compressed := c.EncodeKosinski(driver)

	result, err := transcoder.Convert(
		buildDriverStream(driver, 4, int32(4+len(compressed)-1)),
		image.New(),
		nil,
	)
	assert.ErrorIs(t, err, fdp2bin.ErrCompressedDoesNotFit)
	assert.ErrorContains(t, err, "Size_of_Snd_driver_guess")
	assert.Equal(t, len(compressed), result.CompressedLength)
}

func TestConvert__CompressedPlacedAfterPreviousSegment(t *testing.T) {
	driver := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	stream := ft.NewPFile().
		Segment(0x01, 0x100, []byte{0xaa, 0xbb, 0xcc}).
		Segment(0x51, 0, driver).
		End().
		Reader()

	img := image.New()
	result, err := transcoder.Convert(stream, img, nil)
	require.NoError(t, err)

	compressed := c.EncodeKosinski(driver)
	assert.Equal(t, compressed, img.Bytes()[0x103:])
	assert.EqualValues(t, 0x103, result.Segments[1].Start)
}

func TestConvert__CompressedFirstIsAtZero(t *testing.T) {
	stream := ft.NewPFile().
		Segment(0x51, 0, []byte{7, 7, 7, 7}).
		Segment(0x01, 0x40, []byte{1}).
		End().
		Reader()

	img := image.New()
	result, err := transcoder.Convert(stream, img, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, result.Segments[0].Start)
	assert.Equal(t, c.EncodeKosinski([]byte{7, 7, 7, 7}), img.Bytes()[:result.CompressedLength])
}

func TestConvert__SplitCompressedSegment(t *testing.T) {
	stream := ft.NewPFile().
		Segment(0x51, 0, []byte{1, 2, 3}).
		Segment(0x51, 0x100, []byte{4, 5, 6}).
		End().
		Reader()

	_, err := transcoder.Convert(stream, image.New(), nil)
	assert.ErrorIs(t, err, fdp2bin.ErrSecondCompressedSegment)
	assert.ErrorContains(t, err, "$100")
}

func TestConvert__SecondCompressedSegment(t *testing.T) {
	stream := ft.NewPFile().
		Segment(0x51, 0, []byte{1, 2, 3}).
		Segment(0x01, 0x100, []byte{4, 5, 6}).
		Segment(0x51, 0, []byte{7, 8, 9}).
		End().
		Reader()

	_, err := transcoder.Convert(stream, image.New(), nil)
	assert.ErrorIs(t, err, fdp2bin.ErrSecondCompressedSegment)
}

func TestConvert__Z80AtNonzeroAddressIsCopied(t *testing.T) {
	stream := ft.NewPFile().
		Segment(0x01, 0, []byte{1, 2}).
		Segment(0x51, 4, []byte{3, 4}).
		End().
		Reader()

	img := image.New()
	result, err := transcoder.Convert(stream, img, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 0, 0, 3, 4}, img.Bytes())
	assert.Equal(t, 0, result.CompressedLength)
	assert.False(t, result.Segments[1].Compressed)
}

func TestConvert__CustomCompressedCPU(t *testing.T) {
	options := transcoder.DefaultOptions()
	options.CompressedCPU = pfile.CPU68000

	stream := ft.NewPFile().
		Segment(0x51, 0, []byte{1, 2}).
		Segment(0x01, 0, []byte{0, 0, 0, 0}).
		End().
		Reader()

	img := image.New()
	result, err := transcoder.Convert(stream, img, options)
	require.NoError(t, err)

	compressed := c.EncodeKosinski([]byte{0, 0, 0, 0})
	assert.Equal(t, len(compressed), result.CompressedLength)
	assert.Equal(t, compressed, img.Bytes()[2:])
}

func TestConvert__BadMagicWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	options := transcoder.DefaultOptions()
	options.Logger = zap.New(core)

	stream := ft.NewPFileWithMagic(0x12, 0x34).
		Segment(0x01, 0, []byte{1}).
		End().
		Reader()

	img := image.New()
	_, err := transcoder.Convert(stream, img, options)
	require.NoError(t, err, "a bad signature is only a warning")
	assert.Equal(t, []byte{1}, img.Bytes())
	assert.Equal(t, 1, logs.FilterMessage("first byte of a .p file should be $89").Len())
	assert.Equal(t, 1, logs.FilterMessage("second byte of a .p file should be $14").Len())
}

func TestConvert__EntryPointIgnored(t *testing.T) {
	stream := ft.NewPFile().
		EntryPoint(0x123456).
		Segment(0x01, 1, []byte{5}).
		EntryPoint(0x000200).
		End().
		Reader()

	img := image.New()
	result, err := transcoder.Convert(stream, img, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 5}, img.Bytes())
	assert.Len(t, result.Segments, 1)
}

func TestConvert__Errors(t *testing.T) {
	tests := []struct {
		Name     string
		Stream   []byte
		Expected error
	}{
		{"empty input", nil, fdp2bin.ErrTruncatedRecord},
		{
			"zero length",
			ft.NewPFile().Record([]byte{0x01}, 0, 0, nil).End().Bytes(),
			fdp2bin.ErrZeroLength,
		},
		{
			"negative start",
			ft.NewPFile().Segment(0x01, -1, []byte{1}).End().Bytes(),
			fdp2bin.ErrNegativeStart,
		},
		{
			"unsupported header",
			ft.NewPFile().Raw(0x90).Bytes(),
			fdp2bin.ErrUnsupportedHeader,
		},
		{
			"truncated data",
			ft.NewPFile().Record([]byte{0x01}, 0, 16, []byte{1, 2}).Bytes(),
			fdp2bin.ErrTruncatedRecord,
		},
		{
			"truncated compressed data",
			ft.NewPFile().Record([]byte{0x81, 0x51, 0x01, 0x01}, 0, 16, []byte{1}).Bytes(),
			fdp2bin.ErrTruncatedRecord,
		},
	}

	for _, test := range tests {
		t.Run(
			test.Name,
			func(t *testing.T) {
				_, err := transcoder.Convert(bytes.NewReader(test.Stream), image.New(), nil)
				assert.ErrorIs(t, err, test.Expected)
			},
		)
	}
}

func TestConvert__EndStopsReading(t *testing.T) {
	stream := ft.NewPFile().
		Segment(0x01, 0, []byte{1}).
		End().
		Raw(0xff, 0xff, 0xff).
		Reader()

	img := image.New()
	_, err := transcoder.Convert(stream, img, nil)
	require.NoError(t, err, "data after the end record must be ignored")
	assert.Equal(t, []byte{1}, img.Bytes())
}

func TestConvert__ChunkSizeDoesNotMatter(t *testing.T) {
	payload := make([]byte, 10000)
	rand.New(rand.NewSource(1)).Read(payload)
	stream := ft.NewPFile().Segment(0x01, 3, payload).End().Bytes()

	var images [][]byte
	for _, chunkSize := range []int{1, 3, 4096, 0} {
		options := transcoder.DefaultOptions()
		options.ChunkSize = chunkSize

		img := image.New()
		_, err := transcoder.Convert(bytes.NewReader(stream), img, options)
		require.NoErrorf(t, err, "chunk size %d", chunkSize)
		images = append(images, img.Bytes())
	}

	for i := 1; i < len(images); i++ {
		assert.Equal(t, images[0], images[i])
	}
	assert.Equal(t, payload, images[0][3:])
}

// Placing random uncompressed segments must give the same image as writing
// each one into a flat buffer in order.
func TestConvert__MatchesModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iteration := 0; iteration < 20; iteration++ {
		builder := ft.NewPFile()
		model := make([]byte, 0)

		count := 1 + rng.Intn(10)
		for i := 0; i < count; i++ {
			start := rng.Intn(2048)
			payload := make([]byte, 1+rng.Intn(256))
			rng.Read(payload)

			builder.Segment(0x01, int32(start), payload)
			if end := start + len(payload); end > len(model) {
				model = append(model, make([]byte, end-len(model))...)
			}
			copy(model[start:], payload)
		}

		img := image.New()
		result, err := transcoder.Convert(builder.End().Reader(), img, nil)
		require.NoErrorf(t, err, "iteration %d", iteration)
		assert.Equalf(t, model, img.Bytes(), "iteration %d", iteration)
		assert.Lenf(t, result.Segments, count, "iteration %d", iteration)
	}
}

////////////////////////////////////////////////////////////////////////////////

type failingWriter struct {
	io.WriteSeeker
}

func (w failingWriter) Write([]byte) (int, error) {
	return 0, io.ErrClosedPipe
}

func TestConvert__OutputFailure(t *testing.T) {
	stream := ft.NewPFile().Segment(0x01, 0, []byte{1}).End().Reader()
	_, err := transcoder.Convert(stream, failingWriter{image.New()}, nil)
	assert.ErrorIs(t, err, fdp2bin.ErrIOFailed)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
