// Package codec reads and writes .xlsx workbooks for the core package.
//
// Decoding is lazy: Decode only opens the file and lists its sheets. Each
// sheet's cells are read and typed the first time core asks for it.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/JonMunkholm/sheetdesk/internal/core"
	"github.com/xuri/excelize/v2"
)

// ErrEmptyFile is returned when an upload has no bytes.
var ErrEmptyFile = errors.New("empty file")

// Options bounds the resources used while opening a workbook.
type Options struct {
	// UnzipSizeLimit caps the total unzipped size of the file. Zero uses
	// the excelize default.
	UnzipSizeLimit int64
	// UnzipXMLSizeLimit caps the unzipped size of a single worksheet kept in
	// memory. Larger worksheets are spilled to temporary files.
	UnzipXMLSizeLimit int64
}

// Codec implements core.Codec for .xlsx files.
type Codec struct {
	opts Options
}

var _ core.Codec = (*Codec)(nil)

// New creates a Codec.
func New(opts Options) *Codec {
	return &Codec{opts: opts}
}

// Decode opens data as a workbook. Sheets are decoded on demand by the
// returned source.
func (c *Codec) Decode(data []byte) (core.SheetSource, error) {
	if len(data) == 0 {
		return nil, &core.DecodeError{Err: ErrEmptyFile}
	}
	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{
		UnzipSizeLimit:    c.opts.UnzipSizeLimit,
		UnzipXMLSizeLimit: c.opts.UnzipXMLSizeLimit,
	})
	if err != nil {
		return nil, &core.DecodeError{Err: err}
	}
	src, err := newSource(f)
	if err != nil {
		_ = f.Close()
		return nil, &core.DecodeError{Err: err}
	}
	return src, nil
}

// Encode writes sheets, in order, to a new workbook file.
func (c *Codec) Encode(sheets []core.Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("encode: no sheets")
	}
	f := excelize.NewFile()
	defer f.Close()

	for i, sh := range sheets {
		if err := addSheet(f, i, sh.Name); err != nil {
			return nil, err
		}
		if err := writeTable(f, sh.Name, sh.Table); err != nil {
			return nil, fmt.Errorf("encode sheet %q: %w", sh.Name, err)
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}
