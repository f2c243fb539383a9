package compression

import (
	"bytes"

	"github.com/boljen/go-bitmap"
)

const (
	kosinskiFieldBits = 16

	// kosinskiWindow is the farthest back a full match can reach.
	kosinskiWindow = 0x2000
	// kosinskiInlineWindow is the farthest back an inline match can reach.
	kosinskiInlineWindow = 0x100

	kosinskiMinInlineLength  = 2
	kosinskiMaxInlineLength  = 5
	kosinskiMinFullLength    = 3
	kosinskiMaxCompactLength = 9
	kosinskiMaxMatchLength   = 256
)

// Cost of each operation in bits, counting both the description bits and the
// data bytes.
const (
	kosinskiLiteralCost       = 1 + 8
	kosinskiInlineMatchCost   = 2 + 2 + 8
	kosinskiFullMatchCost     = 2 + 16
	kosinskiExtendedMatchCost = 2 + 24
)

// EncodeKosinski compresses `src` and returns the Kosinski stream, including
// the end-of-stream marker. It never fails; an empty input gives a stream that
// decompresses to nothing.
func EncodeKosinski(src []byte) []byte {
	plan := planKosinski(src)
	writer := newKosinskiWriter(len(src))

	for i := 0; i < len(src); {
		step := plan[i]
		if step.length == 1 {
			writer.literal(src[i])
		} else {
			writer.match(step.distance, step.length)
		}
		i += step.length
	}
	return writer.finish()
}

// kosinskiMatchCost returns the number of bits needed to encode a match, and
// false if the match can't be encoded at all.
func kosinskiMatchCost(distance, length int) (int, bool) {
	switch {
	case length <= kosinskiMaxInlineLength && distance <= kosinskiInlineWindow:
		return kosinskiInlineMatchCost, true
	case length < kosinskiMinFullLength || distance > kosinskiWindow:
		return 0, false
	case length <= kosinskiMaxCompactLength:
		return kosinskiFullMatchCost, true
	default:
		return kosinskiExtendedMatchCost, true
	}
}

////////////////////////////////////////////////////////////////////////////////

// kosinskiWriter buffers description bits and data bytes, and writes them out
// in the order the decompressor reads them.
type kosinskiWriter struct {
	output  *bytes.Buffer
	field   bitmap.Bitmap
	used    int
	pending []byte
}

func newKosinskiWriter(sizeHint int) *kosinskiWriter {
	output := &bytes.Buffer{}
	// Worst case is all literals: 9 bits per byte, plus the end marker.
	output.Grow(sizeHint + sizeHint/8 + 8)
	return &kosinskiWriter{
		output: output,
		field:  bitmap.New(kosinskiFieldBits),
	}
}

func (w *kosinskiWriter) putBit(bit bool) {
	w.field.Set(w.used, bit)
	w.used++
	if w.used == kosinskiFieldBits {
		w.flushField()
	}
}

// flushField writes the current description field followed by all data bytes
// queued since the previous field, then starts a new, empty field.
func (w *kosinskiWriter) flushField() {
	w.output.Write(w.field.Data(false))
	w.output.Write(w.pending)
	w.pending = w.pending[:0]
	w.field = bitmap.New(kosinskiFieldBits)
	w.used = 0
}

func (w *kosinskiWriter) literal(value byte) {
	w.putBit(true)
	w.pending = append(w.pending, value)
}

func (w *kosinskiWriter) match(distance, length int) {
	if length <= kosinskiMaxInlineLength && distance <= kosinskiInlineWindow {
		count := length - 2
		w.putBit(false)
		w.putBit(false)
		w.putBit(count&2 != 0)
		w.putBit(count&1 != 0)
		w.pending = append(w.pending, byte(-distance))
		return
	}

	offset := -distance
	low := byte(offset)
	high := byte(offset>>5) & 0xf8

	w.putBit(false)
	w.putBit(true)
	if length <= kosinskiMaxCompactLength {
		w.pending = append(w.pending, low, high|byte(length-2))
	} else {
		w.pending = append(w.pending, low, high, byte(length-1))
	}
}

// finish writes the end-of-stream marker and the last description field, and
// returns the complete stream.
func (w *kosinskiWriter) finish() []byte {
	w.putBit(false)
	w.putBit(true)
	w.pending = append(w.pending, 0x00, 0xf0, 0x00)

	// The field is written even if it's empty. If the marker's last bit filled
	// up the previous field, the decompressor has already fetched this one.
	w.flushField()
	return w.output.Bytes()
}
