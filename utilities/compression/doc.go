// Package compression implements the Kosinski compression format used by the
// Sega Mega Drive sound driver loader.
//
// Kosinski is an LZ77 variant. The compressed stream interleaves 16-bit
// description fields with the data they describe. A description field is
// stored little-endian and its bits are consumed starting from the least
// significant one. As soon as the last bit of a field has been consumed the
// decompressor fetches the next field from the stream, so a field is always
// followed by the data bytes belonging to the operations that completed
// before it was needed:
//
//	1             literal; copy the next data byte
//	00 ab         inline match; count = ab + 2 (2-5), the next data byte is
//	              0x100 - distance (distance 1-256)
//	01            full match; two data bytes LO HI follow
//
// For a full match the distance is 13 bits wide, `-distance` is stored as
// LO = bits 0-7 and HI bits 3-7 = bits 8-12. The low three bits of HI give
// count - 2 (3-9). If they are zero, a third byte follows: 0 ends the stream,
// 1 is a no-op, and anything else is count - 1 (up to 256 bytes).
//
// The encoder picks the sequence of literals and matches with the fewest total
// bits. The decompressor doesn't care which sequence is used; any valid one
// round-trips.

package compression
