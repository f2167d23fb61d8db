package archive

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

/*
Single-compression rule.

A stored vector tile is gzip-compressed exactly once. Tile servers
disagree about whether they hand out raw protobuf or gzipped protobuf, so
the builder has to look at the payload, not the source:

 1. no gzip magic: the payload is raw, compress it
 2. gzip magic and a successful trial decompression: already compressed,
    store as-is
 3. gzip magic but the trial decompression fails: the magic was a
    coincidence (protobuf can start with 0x1f 0x8b), treat as raw

Raster payloads (png, jpeg, webp) are container formats with their own
compression and are always stored as-is.
*/

var gzipMagic = []byte{0x1f, 0x8b}

func looksGzipped(data []byte) bool {
	return bytes.HasPrefix(data, gzipMagic)
}

// isGzipped reports whether data is a complete, decodable gzip stream,
// not merely something that starts with the magic bytes.
func isGzipped(data []byte) bool {
	if !looksGzipped(data) {
		return false
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return false
	}
	defer r.Close()
	_, err = io.Copy(io.Discard, r)
	return err == nil
}

func gzipCompress(data []byte) ([]byte, *ArchiveError) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, &ArchiveError{
			Message:   fmt.Sprintf("gzip write: %v", err),
			Retryable: false,
			Cause:     ErrCauseCompression,
		}
	}
	if err := w.Close(); err != nil {
		return nil, &ArchiveError{
			Message:   fmt.Sprintf("gzip close: %v", err),
			Retryable: false,
			Cause:     ErrCauseCompression,
		}
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, *ArchiveError) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ArchiveError{
			Message:   fmt.Sprintf("gzip open: %v", err),
			Retryable: false,
			Cause:     ErrCauseCompression,
		}
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, &ArchiveError{
			Message:   fmt.Sprintf("gzip read: %v", err),
			Retryable: false,
			Cause:     ErrCauseCompression,
		}
	}
	return out, nil
}

// normalizePayload applies the single-compression rule to one tile
// payload, returning the bytes to store.
func normalizePayload(data []byte, tileCompression compression) ([]byte, *ArchiveError) {
	if tileCompression != compressionGzip {
		return data, nil
	}
	if isGzipped(data) {
		return data, nil
	}
	return gzipCompress(data)
}
