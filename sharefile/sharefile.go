// Package sharefile writes the size of the compressed sound driver to an
// assembler include file, so that the next assembly pass can reserve exactly
// the right amount of space for it.
package sharefile

import (
	"fmt"
	"io"
	"os"

	"github.com/dargueta/fdp2bin"
	"github.com/hashicorp/go-multierror"
)

// DefaultName is the name of the symbol the sound driver build expects.
const DefaultName = "comp_z80_size"

// Write writes a `#define` line giving the compressed size. Nothing is written
// if `compressedLength` is 0, i.e. nothing was compressed.
func Write(output io.Writer, name string, compressedLength int) error {
	if compressedLength == 0 {
		return nil
	}

	line := fmt.Sprintf("#define %s 0x%X\n", name, compressedLength)
	n, err := io.WriteString(output, line)
	if err == nil && n < len(line) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fdp2bin.ErrIOFailed.Wrap(err)
	}
	return nil
}

// Append adds the `#define` line from [Write] to the end of the file at `path`,
// creating it if necessary. Existing contents are kept since the assembler
// writes its own definitions to the same file. Nothing happens if `path` is
// empty or `compressedLength` is 0.
func Append(path, name string, compressedLength int) (err error) {
	if path == "" || compressedLength == 0 {
		return nil
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fdp2bin.ErrIOFailed.Wrap(err)
	}
	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			err = multierror.Append(err, fdp2bin.ErrIOFailed.Wrap(closeErr)).ErrorOrNil()
		}
	}()

	return Write(file, name, compressedLength)
}
