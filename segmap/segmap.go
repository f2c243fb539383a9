// Package segmap writes a CSV report of where every segment ended up in the
// ROM image. It's meant for debugging layouts: which segments overlap, how big
// the compressed driver came out, and so on.
package segmap

import (
	"fmt"
	"io"

	"github.com/dargueta/fdp2bin"
	"github.com/dargueta/fdp2bin/transcoder"
	"github.com/gocarina/gocsv"
)

// Row is one line of the segment map.
type Row struct {
	Index        int    `csv:"index"`
	CPU          string `csv:"cpu"`
	Type         string `csv:"type"`
	Start        string `csv:"start"`
	End          string `csv:"end"`
	Length       int    `csv:"length"`
	StoredLength int    `csv:"stored_length"`
	Compressed   bool   `csv:"compressed"`
}

func formatAddress(address int64) string {
	return fmt.Sprintf("$%04X", address)
}

// Rows converts placements to map rows, in the same order.
func Rows(placements []transcoder.Placement) []Row {
	rows := make([]Row, len(placements))
	for i, placement := range placements {
		rows[i] = Row{
			Index:        placement.Index,
			CPU:          placement.CPU.String(),
			Type:         placement.Type.String(),
			Start:        formatAddress(placement.Start),
			End:          formatAddress(placement.End()),
			Length:       placement.Length,
			StoredLength: placement.StoredLength,
			Compressed:   placement.Compressed,
		}
	}
	return rows
}

// Write writes the segment map for `placements` as CSV, with a header row.
func Write(output io.Writer, placements []transcoder.Placement) error {
	rows := Rows(placements)
	err := gocsv.Marshal(&rows, output)
	if err != nil {
		return fdp2bin.ErrIOFailed.Wrap(err)
	}
	return nil
}
