package storage

const (
	archiveExtension = ".pmtiles"
	styleFileName    = "style.json"
	reportFileName   = "report.json"
)

// WriteResult identifies one artifact written to the output directory.
type WriteResult struct {
	path string
}

func (r *WriteResult) Path() string {
	return r.path
}

func NewWriteResultForTest(path string) WriteResult {
	return WriteResult{path: path}
}
