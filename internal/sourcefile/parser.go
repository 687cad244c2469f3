// Package sourcefile streams OpenSecrets-style delimited bulk files as
// fixed-width string rows. Files are comma-delimited with text fields
// wrapped in pipes (|value|), so a comma inside a pipe-wrapped field (for
// example "LASTNAME, FIRSTNAME") does not split the field. The package
// tolerates encoding irregularities via a fallback chain and normalizes
// every row to the declared column count.
package sourcefile

import (
	"bufio"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Row is one parsed record: an ordered tuple of text fields.
type Row []string

// RowSource is a single-pass pull cursor over parsed rows. Next returns the
// next row and true, or nil and false at end of stream; Err reports any
// error that terminated the stream early. A RowSource cannot be restarted;
// callers re-open the file to iterate again.
type RowSource interface {
	Next() (Row, bool)
	Err() error
}

// Options controls the delimiter conventions of a source file.
type Options struct {
	// Delimiter separates fields (default ',').
	Delimiter byte
	// Quote wraps text fields so internal delimiters survive (default '|').
	Quote byte
}

// DefaultOptions returns the OpenSecrets bulk-file conventions.
func DefaultOptions() Options {
	return Options{Delimiter: ',', Quote: '|'}
}

// maxLineSize bounds a single physical line; individual contribution rows
// run well under this even with free-text employer fields. A longer line is
// treated as one more malformed row: skipped and counted, never fatal.
const maxLineSize = 4 * 1024 * 1024

// RowReader streams one source file as rows of exactly Width fields.
// Rows with too few fields are right-padded with empty strings, rows with
// too many are truncated. Structurally malformed lines (unbalanced quote,
// longer than maxLineSize) are skipped and counted, never fatal.
type RowReader struct {
	path     string
	width    int
	opts     Options
	encoding string

	reader *bufio.Reader
	closer interface{ Close() error }
	logger zerolog.Logger

	rowCount  int64
	skipCount int64
	err       error
	done      bool
}

// Open opens path for streaming with the declared expected column count.
// The encoding is chosen by the fallback chain; a fallback away from utf-8
// is logged as a warning.
func Open(path string, width int, opts Options, logger zerolog.Logger) (*RowReader, error) {
	decoded, f, enc, err := openDecoded(path)
	if err != nil {
		return nil, err
	}

	if enc != "utf-8" {
		logger.Warn().Str("file", path).Str("encoding", enc).
			Msg("opened with fallback encoding")
	}

	return &RowReader{
		path:     path,
		width:    width,
		opts:     opts,
		encoding: enc,
		reader:   bufio.NewReaderSize(decoded, 64*1024),
		closer:   f,
		logger:   logger,
	}, nil
}

// Next returns the next normalized row. At end of stream it closes the
// underlying file and logs the final row and skip counts.
func (r *RowReader) Next() (Row, bool) {
	if r.done {
		return nil, false
	}

	for {
		line, tooLong, err := r.readLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.err = err
			break
		}
		if tooLong {
			r.skipCount++
			r.logger.Warn().Str("file", r.path).Int64("line", r.rowCount+r.skipCount).
				Msg("skipping oversized row")
			continue
		}
		fields, ok := splitFields(line, r.opts)
		if !ok {
			r.skipCount++
			r.logger.Debug().Str("file", r.path).Int64("line", r.rowCount+r.skipCount).
				Msg("skipping structurally malformed row")
			continue
		}
		r.rowCount++
		return normalizeWidth(fields, r.width), true
	}

	r.finish()
	return nil, false
}

// readLine returns the next physical line without its terminator. A line
// longer than maxLineSize is discarded in full and reported via tooLong so
// the caller can count it as a skipped row. End of input is io.EOF.
func (r *RowReader) readLine() (line string, tooLong bool, err error) {
	var buf []byte
	for {
		frag, ferr := r.reader.ReadSlice('\n')
		buf = append(buf, frag...)
		switch ferr {
		case nil:
			return strings.TrimRight(string(buf), "\r\n"), false, nil
		case bufio.ErrBufferFull:
			if len(buf) > maxLineSize {
				return "", true, r.discardLine()
			}
		case io.EOF:
			if len(buf) == 0 {
				return "", false, io.EOF
			}
			return strings.TrimRight(string(buf), "\r\n"), false, nil
		default:
			return "", false, ferr
		}
	}
}

// discardLine drops the remainder of the current oversized line.
func (r *RowReader) discardLine() error {
	for {
		_, err := r.reader.ReadSlice('\n')
		switch err {
		case nil, io.EOF:
			return nil
		case bufio.ErrBufferFull:
			// keep draining
		default:
			return err
		}
	}
}

// Err returns the error that terminated the stream, if any. Skipped rows
// are not errors; see SkipCount.
func (r *RowReader) Err() error {
	return r.err
}

// RowCount returns the number of rows produced so far.
func (r *RowReader) RowCount() int64 {
	return r.rowCount
}

// SkipCount returns the number of malformed rows skipped so far.
func (r *RowReader) SkipCount() int64 {
	return r.skipCount
}

// Encoding returns the encoding the file was opened with.
func (r *RowReader) Encoding() string {
	return r.encoding
}

// Close releases the underlying file. Safe to call after exhaustion.
func (r *RowReader) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	return r.closer.Close()
}

func (r *RowReader) finish() {
	r.done = true
	r.closer.Close()
	r.logger.Info().Str("file", r.path).
		Int64("rows", r.rowCount).
		Int64("skipped", r.skipCount).
		Str("encoding", r.encoding).
		Msg("finished parsing source file")
}

// splitFields splits a line on the delimiter, honoring the quote character:
// delimiters inside a quoted span do not split, and the quote characters
// themselves are stripped. Returns false when the line ends inside an open
// quote (structural malformation).
func splitFields(line string, opts Options) ([]string, bool) {
	fields := make([]string, 0, 24)
	var field strings.Builder
	inQuote := false

	for i := 0; i < len(line); i++ {
		switch c := line[i]; c {
		case opts.Quote:
			inQuote = !inQuote
		case opts.Delimiter:
			if inQuote {
				field.WriteByte(c)
			} else {
				fields = append(fields, strings.TrimSpace(field.String()))
				field.Reset()
			}
		default:
			field.WriteByte(c)
		}
	}
	if inQuote {
		return nil, false
	}
	fields = append(fields, strings.TrimSpace(field.String()))
	return fields, true
}

// normalizeWidth pads or truncates fields to exactly width entries. This is
// an intentional lossy normalization: downstream schemas rely on every row
// having the declared shape.
func normalizeWidth(fields []string, width int) Row {
	if len(fields) > width {
		return Row(fields[:width])
	}
	for len(fields) < width {
		fields = append(fields, "")
	}
	return Row(fields)
}
