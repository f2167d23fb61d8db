package archive

import (
	"github.com/rohmanhakim/mapfreeze/internal/classifier"
)

const (
	headerLen = 127
	magic     = "PMTiles"
	version   = 3
)

// compression values as stored in the header.
type compression uint8

const (
	compressionUnknown compression = 0
	compressionNone    compression = 1
	compressionGzip    compression = 2
)

func (c compression) String() string {
	switch c {
	case compressionNone:
		return "none"
	case compressionGzip:
		return "gzip"
	default:
		return "unknown"
	}
}

// tileKind values as stored in the header.
type tileKind uint8

const (
	tileKindUnknown tileKind = 0
	tileKindMVT     tileKind = 1
	tileKindPNG     tileKind = 2
	tileKindJPEG    tileKind = 3
	tileKindWebP    tileKind = 4
)

func (k tileKind) String() string {
	switch k {
	case tileKindMVT:
		return "mvt"
	case tileKindPNG:
		return "png"
	case tileKindJPEG:
		return "jpeg"
	case tileKindWebP:
		return "webp"
	default:
		return "unknown"
	}
}

// header is the fixed 127-byte archive prologue. All offsets are absolute
// file positions; all multi-byte integers are little-endian.
type header struct {
	rootOffset     uint64
	rootLength     uint64
	metadataOffset uint64
	metadataLength uint64
	leafOffset     uint64
	leafLength     uint64
	tileDataOffset uint64
	tileDataLength uint64

	addressedTiles uint64
	tileEntries    uint64
	tileContents   uint64

	clustered           bool
	internalCompression compression
	tileCompression     compression
	tileType            tileKind

	minZoom uint8
	maxZoom uint8

	minLonE7 int32
	minLatE7 int32
	maxLonE7 int32
	maxLatE7 int32

	centerZoom uint8
	centerLonE7 int32
	centerLatE7 int32
}

// entry is one row of the root directory: a tile ID, its payload location
// inside the tile data section, and how many consecutive IDs share it.
type entry struct {
	tileID    uint64
	offset    uint64
	length    uint32
	runLength uint32
}

// BuildInput is everything the builder needs for one source. Tiles need
// not be ordered; the builder sorts them into tile ID order itself, and
// derives the header's zoom range and bounds from them.
type BuildInput struct {
	SourceName string
	TileType   classifier.TileType
	Format     string
	Tiles      []classifier.ClassifiedTile
}

// BuildResult summarizes one written archive.
type BuildResult struct {
	Path           string
	AddressedTiles int
	TileEntries    int
	TileContents   int
	SkippedTiles   int
	DedupedTiles   int
	VectorLayers   []string
	Checksum       string
	SizeBytes      int64
}

// Diagnostic is what Validate returns: observed facts about a reopened
// archive, not a verdict. The caller decides what is acceptable.
type Diagnostic struct {
	TileType            string
	InternalCompression string
	TileCompression     string
	AddressedTiles      uint64
	SamplePrefixHex     string
	SampleDecompresses  bool
}
