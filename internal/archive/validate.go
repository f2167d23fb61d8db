package archive

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/rohmanhakim/mapfreeze/internal/metadata"
)

const samplePrefixLen = 8

type Validator struct {
	metadataSink metadata.MetadataSink
}

func NewValidator(metadataSink metadata.MetadataSink) Validator {
	return Validator{
		metadataSink: metadataSink,
	}
}

// Validate reopens a written archive and reports what it finds: header
// facts, plus the leading bytes of the first tile and whether that tile
// decompresses. It returns observations, not a pass/fail verdict; the
// caller decides what counts as acceptable.
func (v *Validator) Validate(path string) (Diagnostic, *ArchiveError) {
	raw, rerr := os.ReadFile(path)
	if rerr != nil {
		err := &ArchiveError{
			Message:   fmt.Sprintf("reading %s: %v", path, rerr),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
		}
		v.recordError("Validator.Validate", path, err)
		return Diagnostic{}, err
	}

	hdr, err := parseHeader(raw)
	if err != nil {
		v.recordError("Validator.Validate", path, err)
		return Diagnostic{}, err
	}

	entries, err := v.readDirectory(raw, hdr)
	if err != nil {
		v.recordError("Validator.Validate", path, err)
		return Diagnostic{}, err
	}

	diagnostic := Diagnostic{
		TileType:            hdr.tileType.String(),
		InternalCompression: hdr.internalCompression.String(),
		TileCompression:     hdr.tileCompression.String(),
		AddressedTiles:      hdr.addressedTiles,
	}

	if len(entries) > 0 {
		sample, err := sliceSection(raw,
			hdr.tileDataOffset+entries[0].offset, uint64(entries[0].length))
		if err != nil {
			v.recordError("Validator.Validate", path, err)
			return Diagnostic{}, err
		}
		prefix := sample
		if len(prefix) > samplePrefixLen {
			prefix = prefix[:samplePrefixLen]
		}
		diagnostic.SamplePrefixHex = hex.EncodeToString(prefix)
		diagnostic.SampleDecompresses = isGzipped(sample)
	}

	return diagnostic, nil
}

func (v *Validator) readDirectory(raw []byte, hdr header) ([]entry, *ArchiveError) {
	section, err := sliceSection(raw, hdr.rootOffset, hdr.rootLength)
	if err != nil {
		return nil, err
	}
	if hdr.internalCompression == compressionGzip {
		section, err = gzipDecompress(section)
		if err != nil {
			return nil, &ArchiveError{
				Message:   fmt.Sprintf("root directory: %s", err.Message),
				Retryable: false,
				Cause:     ErrCauseCorruptDirectory,
			}
		}
	}
	return deserializeDirectory(section)
}

func (v *Validator) recordError(action string, path string, err *ArchiveError) {
	v.metadataSink.RecordError(
		time.Now(),
		"archive",
		action,
		mapArchiveErrorToMetadataCause(err),
		err.Message,
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrPath, path),
		},
	)
}

func parseHeader(raw []byte) (header, *ArchiveError) {
	if len(raw) < headerLen {
		return header{}, &ArchiveError{
			Message:   fmt.Sprintf("file is %d bytes, shorter than the %d byte header", len(raw), headerLen),
			Retryable: false,
			Cause:     ErrCauseCorruptHeader,
		}
	}
	if !bytes.Equal(raw[0:7], []byte(magic)) {
		return header{}, &ArchiveError{
			Message:   "magic bytes missing",
			Retryable: false,
			Cause:     ErrCauseCorruptHeader,
		}
	}
	if raw[7] != version {
		return header{}, &ArchiveError{
			Message:   fmt.Sprintf("unsupported archive version %d", raw[7]),
			Retryable: false,
			Cause:     ErrCauseCorruptHeader,
		}
	}

	le := binary.LittleEndian
	return header{
		rootOffset:     le.Uint64(raw[8:16]),
		rootLength:     le.Uint64(raw[16:24]),
		metadataOffset: le.Uint64(raw[24:32]),
		metadataLength: le.Uint64(raw[32:40]),
		leafOffset:     le.Uint64(raw[40:48]),
		leafLength:     le.Uint64(raw[48:56]),
		tileDataOffset: le.Uint64(raw[56:64]),
		tileDataLength: le.Uint64(raw[64:72]),
		addressedTiles: le.Uint64(raw[72:80]),
		tileEntries:    le.Uint64(raw[80:88]),
		tileContents:   le.Uint64(raw[88:96]),

		clustered:           raw[96] == 1,
		internalCompression: compression(raw[97]),
		tileCompression:     compression(raw[98]),
		tileType:            tileKind(raw[99]),

		minZoom: raw[100],
		maxZoom: raw[101],

		minLonE7: int32(le.Uint32(raw[102:106])),
		minLatE7: int32(le.Uint32(raw[106:110])),
		maxLonE7: int32(le.Uint32(raw[110:114])),
		maxLatE7: int32(le.Uint32(raw[114:118])),

		centerZoom:  raw[118],
		centerLonE7: int32(le.Uint32(raw[119:123])),
		centerLatE7: int32(le.Uint32(raw[123:127])),
	}, nil
}

// deserializeDirectory is the inverse of serializeDirectory.
func deserializeDirectory(buf []byte) ([]entry, *ArchiveError) {
	r := bytes.NewReader(buf)
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, corruptDirectory("entry count")
	}

	entries := make([]entry, count)
	var lastID uint64
	for i := range entries {
		delta, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, corruptDirectory("tile id")
		}
		if i == 0 {
			lastID = delta
		} else {
			lastID += delta
		}
		entries[i].tileID = lastID
	}
	for i := range entries {
		runLength, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, corruptDirectory("run length")
		}
		entries[i].runLength = uint32(runLength)
	}
	for i := range entries {
		length, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, corruptDirectory("length")
		}
		entries[i].length = uint32(length)
	}
	for i := range entries {
		offset, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, corruptDirectory("offset")
		}
		if offset == 0 {
			if i == 0 {
				return nil, corruptDirectory("offset")
			}
			entries[i].offset = entries[i-1].offset + uint64(entries[i-1].length)
		} else {
			entries[i].offset = offset - 1
		}
	}
	return entries, nil
}

func corruptDirectory(field string) *ArchiveError {
	return &ArchiveError{
		Message:   fmt.Sprintf("directory truncated at %s", field),
		Retryable: false,
		Cause:     ErrCauseCorruptDirectory,
	}
}

func sliceSection(raw []byte, offset uint64, length uint64) ([]byte, *ArchiveError) {
	end := offset + length
	if end < offset || end > uint64(len(raw)) {
		return nil, &ArchiveError{
			Message:   fmt.Sprintf("section [%d, %d) outside the %d byte file", offset, end, len(raw)),
			Retryable: false,
			Cause:     ErrCauseCorruptDirectory,
		}
	}
	return raw[offset:end], nil
}
