package archive

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/paulmach/orb/maptile"

	"github.com/rohmanhakim/mapfreeze/internal/classifier"
	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/rohmanhakim/mapfreeze/pkg/hashutil"
)

/*
Responsibilities

- Lay out one archive file per source: header, root directory, metadata,
  clustered tile data
- Enforce the single-compression rule on every stored payload
- Deduplicate identical payloads by content hash
- Skip and count malformed tiles instead of failing the build

Layout Contract

- Tile data is written in ascending tile ID order (clustered)
- The root directory is the only directory; capture-sized archives never
  need leaves
- Directory and metadata sections are gzipped; the header is not

The builder owns the bytes on disk. Nothing else in the pipeline writes
into an archive file.
*/

const layerSampleCount = 3

type Builder struct {
	metadataSink metadata.MetadataSink
}

func NewBuilder(metadataSink metadata.MetadataSink) Builder {
	return Builder{
		metadataSink: metadataSink,
	}
}

// Build writes the archive for one source to path and reports what went
// into it.
func (b *Builder) Build(path string, input BuildInput) (BuildResult, *ArchiveError) {
	tileType, tileCompression := resolveTileKind(input.TileType, input.Format)

	ordered, skipped := b.orderTiles(input.Tiles)
	if len(ordered) == 0 {
		err := &ArchiveError{
			Message:   fmt.Sprintf("source %q has no usable tiles", input.SourceName),
			Retryable: false,
			Cause:     ErrCauseEmptyTileSet,
		}
		b.recordError("Builder.Build", path, err)
		return BuildResult{}, err
	}

	var (
		tileData bytes.Buffer
		entries  = make([]entry, 0, len(ordered))
		byHash   = make(map[string]entry)
		deduped  int
	)
	for _, tile := range ordered {
		payload, cerr := normalizePayload(tile.data, tileCompression)
		if cerr != nil {
			b.recordError("Builder.Build", path, cerr)
			return BuildResult{}, cerr
		}

		hash, herr := hashutil.HashBytes(payload, hashutil.HashAlgoBLAKE3)
		if herr != nil {
			err := &ArchiveError{
				Message:   fmt.Sprintf("hashing payload: %v", herr),
				Retryable: false,
				Cause:     ErrCauseWriteFailure,
			}
			b.recordError("Builder.Build", path, err)
			return BuildResult{}, err
		}

		known, seen := byHash[hash]
		if seen {
			deduped++
			entries = append(entries, entry{
				tileID:    tile.id,
				offset:    known.offset,
				length:    known.length,
				runLength: 1,
			})
			continue
		}

		e := entry{
			tileID:    tile.id,
			offset:    uint64(tileData.Len()),
			length:    uint32(len(payload)),
			runLength: 1,
		}
		tileData.Write(payload)
		byHash[hash] = e
		entries = append(entries, e)
	}

	var vectorLayers []string
	if tileType == tileKindMVT {
		vectorLayers = discoverVectorLayers(layerSamples(ordered))
	}

	rootDir, err := gzipCompress(serializeDirectory(entries))
	if err != nil {
		b.recordError("Builder.Build", path, err)
		return BuildResult{}, err
	}

	metadataJSON, merr := json.Marshal(archiveMetadata{
		Name:         input.SourceName,
		Format:       formatLabel(tileType),
		VectorLayers: layerList(vectorLayers),
	})
	if merr != nil {
		err := &ArchiveError{
			Message:   fmt.Sprintf("encoding metadata: %v", merr),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
		}
		b.recordError("Builder.Build", path, err)
		return BuildResult{}, err
	}
	metadataSection, err := gzipCompress(metadataJSON)
	if err != nil {
		b.recordError("Builder.Build", path, err)
		return BuildResult{}, err
	}

	hdr := b.buildHeader(input, ordered, entries, tileType, tileCompression,
		uint64(len(rootDir)), uint64(len(metadataSection)), uint64(tileData.Len()), len(byHash))

	var file bytes.Buffer
	file.Write(serializeHeader(hdr))
	file.Write(rootDir)
	file.Write(metadataSection)
	file.Write(tileData.Bytes())

	if werr := os.WriteFile(path, file.Bytes(), 0o644); werr != nil {
		err := &ArchiveError{
			Message:   fmt.Sprintf("writing %s: %v", path, werr),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
		}
		b.recordError("Builder.Build", path, err)
		return BuildResult{}, err
	}

	checksum, herr := hashutil.HashBytes(file.Bytes(), hashutil.HashAlgoBLAKE3)
	if herr != nil {
		err := &ArchiveError{
			Message:   fmt.Sprintf("hashing archive: %v", herr),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
		}
		b.recordError("Builder.Build", path, err)
		return BuildResult{}, err
	}

	if skipped > 0 {
		b.metadataSink.RecordWarning(
			"archive",
			fmt.Sprintf("source %q: %d malformed tiles skipped", input.SourceName, skipped),
		)
	}

	return BuildResult{
		Path:           path,
		AddressedTiles: len(entries),
		TileEntries:    len(entries),
		TileContents:   len(byHash),
		SkippedTiles:   skipped,
		DedupedTiles:   deduped,
		VectorLayers:   vectorLayers,
		Checksum:       checksum,
		SizeBytes:      int64(file.Len()),
	}, nil
}

// orderedTile is a payload pinned to its archive tile ID.
type orderedTile struct {
	id    uint64
	coord maptile.Tile
	data  []byte
}

// orderTiles validates, de-duplicates by coordinate (first occurrence
// wins) and sorts into ascending tile ID order.
func (b *Builder) orderTiles(tiles []classifier.ClassifiedTile) ([]orderedTile, int) {
	var (
		skipped int
		seen    = make(map[uint64]struct{}, len(tiles))
		ordered = make([]orderedTile, 0, len(tiles))
	)
	for _, tile := range tiles {
		if len(tile.Data) == 0 {
			skipped++
			continue
		}
		id, err := TileID(tile.Coord)
		if err != nil {
			skipped++
			continue
		}
		if _, dup := seen[id]; dup {
			skipped++
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, orderedTile{id: id, coord: tile.Coord, data: tile.Data})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].id < ordered[j].id
	})
	return ordered, skipped
}

func (b *Builder) buildHeader(
	input BuildInput,
	ordered []orderedTile,
	entries []entry,
	tileType tileKind,
	tileCompression compression,
	rootLength uint64,
	metadataLength uint64,
	tileDataLength uint64,
	tileContents int,
) header {
	minZoom, maxZoom := ordered[0].coord.Z, ordered[0].coord.Z
	bounds := ordered[0].coord.Bound()
	for _, tile := range ordered[1:] {
		if tile.coord.Z < minZoom {
			minZoom = tile.coord.Z
		}
		if tile.coord.Z > maxZoom {
			maxZoom = tile.coord.Z
		}
		bounds = bounds.Union(tile.coord.Bound())
	}
	center := bounds.Center()

	hdr := header{
		rootOffset:     headerLen,
		rootLength:     rootLength,
		metadataOffset: headerLen + rootLength,
		metadataLength: metadataLength,
		tileDataLength: tileDataLength,

		addressedTiles: uint64(len(entries)),
		tileEntries:    uint64(len(entries)),
		tileContents:   uint64(tileContents),

		clustered:           true,
		internalCompression: compressionGzip,
		tileCompression:     tileCompression,
		tileType:            tileType,

		minZoom: uint8(minZoom),
		maxZoom: uint8(maxZoom),

		minLonE7: toE7(bounds.Min[0]),
		minLatE7: toE7(bounds.Min[1]),
		maxLonE7: toE7(bounds.Max[0]),
		maxLatE7: toE7(bounds.Max[1]),

		centerZoom:  uint8(minZoom),
		centerLonE7: toE7(center[0]),
		centerLatE7: toE7(center[1]),
	}
	hdr.leafOffset = hdr.metadataOffset + hdr.metadataLength
	hdr.leafLength = 0
	hdr.tileDataOffset = hdr.leafOffset
	return hdr
}

func (b *Builder) recordError(action string, path string, err *ArchiveError) {
	b.metadataSink.RecordError(
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

// layerSamples picks the largest payloads of the set for layer discovery.
func layerSamples(ordered []orderedTile) [][]byte {
	samples := make([][]byte, 0, len(ordered))
	for _, tile := range ordered {
		samples = append(samples, tile.data)
	}
	sort.Slice(samples, func(i, j int) bool {
		return len(samples[i]) > len(samples[j])
	})
	if len(samples) > layerSampleCount {
		samples = samples[:layerSampleCount]
	}
	return samples
}

type archiveMetadata struct {
	Name         string            `json:"name"`
	Format       string            `json:"format"`
	VectorLayers []vectorLayerName `json:"vector_layers,omitempty"`
}

func layerList(names []string) []vectorLayerName {
	out := make([]vectorLayerName, 0, len(names))
	for _, name := range names {
		out = append(out, vectorLayerName{ID: name})
	}
	return out
}

func resolveTileKind(tileType classifier.TileType, format string) (tileKind, compression) {
	if tileType == classifier.TileTypeVector {
		return tileKindMVT, compressionGzip
	}
	switch format {
	case "png":
		return tileKindPNG, compressionNone
	case "jpg", "jpeg":
		return tileKindJPEG, compressionNone
	case "webp":
		return tileKindWebP, compressionNone
	default:
		return tileKindUnknown, compressionNone
	}
}

func formatLabel(kind tileKind) string {
	if kind == tileKindMVT {
		return "pbf"
	}
	return kind.String()
}

func toE7(v float64) int32 {
	return int32(v * 1e7)
}

// serializeDirectory encodes entries in the varint layout: entry count,
// delta-coded tile IDs, run lengths, lengths, then offsets where 0 means
// contiguous with the previous entry and anything else is offset+1.
func serializeDirectory(entries []entry) []byte {
	buf := make([]byte, 0, len(entries)*6)
	buf = binary.AppendUvarint(buf, uint64(len(entries)))

	var lastID uint64
	for i, e := range entries {
		if i == 0 {
			buf = binary.AppendUvarint(buf, e.tileID)
		} else {
			buf = binary.AppendUvarint(buf, e.tileID-lastID)
		}
		lastID = e.tileID
	}
	for _, e := range entries {
		buf = binary.AppendUvarint(buf, uint64(e.runLength))
	}
	for _, e := range entries {
		buf = binary.AppendUvarint(buf, uint64(e.length))
	}
	for i, e := range entries {
		if i > 0 && e.offset == entries[i-1].offset+uint64(entries[i-1].length) {
			buf = binary.AppendUvarint(buf, 0)
		} else {
			buf = binary.AppendUvarint(buf, e.offset+1)
		}
	}
	return buf
}

func serializeHeader(h header) []byte {
	buf := make([]byte, headerLen)
	copy(buf[0:7], magic)
	buf[7] = version

	le := binary.LittleEndian
	le.PutUint64(buf[8:16], h.rootOffset)
	le.PutUint64(buf[16:24], h.rootLength)
	le.PutUint64(buf[24:32], h.metadataOffset)
	le.PutUint64(buf[32:40], h.metadataLength)
	le.PutUint64(buf[40:48], h.leafOffset)
	le.PutUint64(buf[48:56], h.leafLength)
	le.PutUint64(buf[56:64], h.tileDataOffset)
	le.PutUint64(buf[64:72], h.tileDataLength)
	le.PutUint64(buf[72:80], h.addressedTiles)
	le.PutUint64(buf[80:88], h.tileEntries)
	le.PutUint64(buf[88:96], h.tileContents)

	if h.clustered {
		buf[96] = 1
	}
	buf[97] = byte(h.internalCompression)
	buf[98] = byte(h.tileCompression)
	buf[99] = byte(h.tileType)
	buf[100] = h.minZoom
	buf[101] = h.maxZoom

	le.PutUint32(buf[102:106], uint32(h.minLonE7))
	le.PutUint32(buf[106:110], uint32(h.minLatE7))
	le.PutUint32(buf[110:114], uint32(h.maxLonE7))
	le.PutUint32(buf[114:118], uint32(h.maxLatE7))

	buf[118] = h.centerZoom
	le.PutUint32(buf[119:123], uint32(h.centerLonE7))
	le.PutUint32(buf[123:127], uint32(h.centerLatE7))
	return buf
}
