package blog

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"io"
)

// auditTag marks the lines recording a batch outcome.
const auditTag = "[AUDIT] "

// lineWriter is the io.Writer under every handler built by New. slog issues
// exactly one Write per record, so each call is one line: it is written as
// "<checksum> <tag><line>", where the checksum covers the tag and the line.
type lineWriter struct {
	out io.Writer
	tag string
}

func (w lineWriter) Write(p []byte) (int, error) {
	line := make([]byte, 0, len(w.tag)+len(p))
	line = append(line, w.tag...)
	line = append(line, p...)

	var buf bytes.Buffer
	buf.Grow(len(line) + 12)
	buf.WriteString(lineChecksum(line))
	buf.WriteByte(' ')
	buf.Write(line)
	n, err := buf.WriteTo(w.out)
	return int(n), err
}

// lineChecksum is the little-endian CRC32 (IEEE) of line, unpadded base64url
// encoded.
func lineChecksum(line []byte) string {
	var sum [crc32.Size]byte
	binary.LittleEndian.PutUint32(sum[:], crc32.ChecksumIEEE(line))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
