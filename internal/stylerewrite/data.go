package stylerewrite

// ArchiveRef is what the rewriter knows about one built archive: enough
// to match it against a style source and point the style at it.
type ArchiveRef struct {
	SourceName  string
	Path        string
	URLTemplate string // inferred {z}/{x}/{y} template; empty when never observed
	SampleURL   string // one concrete tile URL, for domain matching
}

// Result is the outcome of one rewrite pass.
type Result struct {
	Style     []byte
	Rewritten int
	Unmatched int
}
