package sourcefile

import (
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	pkgerrors "github.com/moneytrail/moneytrail/internal/errors"
)

// probeSize is how many leading bytes are test-decoded when picking an
// encoding for a source file.
const probeSize = 1024

// fallbackEncodings is the encoding chain tried in order for every source
// file. The first encoding whose test decode of the leading chunk succeeds
// wins; bytes that still fail to decode later in the stream are replaced
// with U+FFFD rather than aborting the file.
var fallbackEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"utf-8", unicode.UTF8},
	{"latin-1", charmap.ISO8859_1},
	{"cp1252", charmap.Windows1252},
}

// openDecoded opens a source file and wraps it in a decoder chosen by
// probing the leading chunk. Returns the decoded reader, the underlying
// file (for Close), and the name of the encoding selected.
func openDecoded(path string) (io.Reader, *os.File, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, "", err
	}

	chunk := make([]byte, probeSize)
	n, err := f.Read(chunk)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, nil, "", pkgerrors.NewEncodingError(
			fmt.Sprintf("cannot read test chunk from %s", path), err)
	}
	chunk = chunk[:n]

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, nil, "", pkgerrors.NewEncodingError(
			fmt.Sprintf("cannot rewind %s after probe", path), err)
	}

	for _, cand := range fallbackEncodings {
		if !probeChunk(cand.name, chunk) {
			continue
		}
		return transform.NewReader(f, cand.enc.NewDecoder()), f, cand.name, nil
	}

	f.Close()
	return nil, nil, "", pkgerrors.NewEncodingError(
		fmt.Sprintf("cannot decode %s with any supported encoding", path), nil)
}

// probeChunk reports whether the chunk decodes cleanly under the named
// encoding. The 8-bit charmaps accept every byte value, so they act as the
// terminal fallbacks of the chain; only the utf-8 probe can reject.
func probeChunk(name string, chunk []byte) bool {
	if name != "utf-8" {
		return true
	}
	return utf8.Valid(trimPartialRune(chunk))
}

// trimPartialRune drops a multi-byte rune cut off by the probe boundary so
// that a truncated trailing sequence does not disqualify a valid utf-8 file.
func trimPartialRune(chunk []byte) []byte {
	for i := 0; i < utf8.UTFMax && i < len(chunk); i++ {
		end := len(chunk) - i
		if r, _ := utf8.DecodeLastRune(chunk[:end]); r != utf8.RuneError {
			return chunk[:end]
		}
	}
	return chunk
}
