package archive

import (
	"sort"

	"github.com/paulmach/orb/encoding/mvt"
)

// vectorLayerName is the shape the metadata section uses for one layer,
// following the tilejson vector_layers convention.
type vectorLayerName struct {
	ID string `json:"id"`
}

// discoverVectorLayers decodes sample tiles and collects the union of
// their layer names. Samples should be the larger payloads of the set;
// small edge tiles often omit layers the source actually serves. A tile
// that fails to decode contributes nothing, layer discovery is
// descriptive metadata and never fails a build.
func discoverVectorLayers(samples [][]byte) []string {
	seen := make(map[string]struct{})
	for _, sample := range samples {
		var layers mvt.Layers
		var err error
		if isGzipped(sample) {
			layers, err = mvt.UnmarshalGzipped(sample)
		} else {
			layers, err = mvt.Unmarshal(sample)
		}
		if err != nil {
			continue
		}
		for _, layer := range layers {
			seen[layer.Name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
