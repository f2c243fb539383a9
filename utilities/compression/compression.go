package compression

import (
	"io"
)

// CompressKosinski reads `input` until EOF and writes its Kosinski-compressed
// form to `output`.
//
// The returned int64 gives the number of bytes written to the output stream. If
// an error occurred, the value is undefined and should not be used.
func CompressKosinski(input io.Reader, output io.Writer) (int64, error) {
	// Kosinski can only reference the previous 8 KiB, but the optimal parse
	// needs to see the whole input anyway, and sound drivers are small.
	source, err := io.ReadAll(input)
	if err != nil {
		return 0, err
	}

	n, err := output.Write(EncodeKosinski(source))
	return int64(n), err
}
