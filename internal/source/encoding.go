package source

// encoding.go cleans raw source bytes before parsing.
//
// Roster exports come out of spreadsheet tools on every platform, so two
// artifacts show up regularly:
//
//   - a UTF-8 BOM (0xEF 0xBB 0xBF) at the start of Windows files
//   - stray Latin-1 bytes in otherwise UTF-8 names
//
// Sources are read whole because the raw snapshot needs the original bytes,
// so cleanup works on the buffer rather than on a stream.

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrSourceTooLarge is returned when a source file exceeds the configured limit.
var ErrSourceTooLarge = errors.New("source file too large")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// StripBOM returns data without a leading UTF-8 BOM.
func StripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// SanitizeUTF8 replaces each invalid UTF-8 byte with '?'. Valid input is
// returned as is.
func SanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}
	out := make([]byte, 0, len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			out = append(out, '?')
		} else {
			out = append(out, data[:size]...)
		}
		data = data[size:]
	}
	return out
}

// Normalize applies StripBOM and SanitizeUTF8.
func Normalize(data []byte) []byte {
	return SanitizeUTF8(StripBOM(data))
}

// CountingReader tracks bytes read from the underlying reader.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// ReadAllLimited reads r fully. A non-positive limit disables the check.
func ReadAllLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	cr := NewCountingReader(io.LimitReader(r, limit+1))
	data, err := io.ReadAll(cr)
	if err != nil {
		return nil, err
	}
	if cr.BytesRead > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrSourceTooLarge, limit)
	}
	return data, nil
}
