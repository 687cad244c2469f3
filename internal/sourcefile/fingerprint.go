package sourcefile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/spaolacci/murmur3"
)

// fingerprintHead is how many leading bytes participate in the fingerprint.
// Combined with the file size this is enough to notice a replaced or
// re-exported bulk file without hashing multi-gigabyte inputs in full.
const fingerprintHead = 64 * 1024

// Fingerprint returns a stable hex fingerprint of a source file, computed
// from its size and leading bytes. Used to detect stale checkpoint entries
// when an input file changes between runs.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	h := murmur3.New128()
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(info.Size()))
	h.Write(size[:])

	if _, err := io.CopyN(h, f, fingerprintHead); err != nil && err != io.EOF {
		return "", err
	}

	h1, h2 := h.Sum128()
	return fmt.Sprintf("%016x%016x", h1, h2), nil
}
