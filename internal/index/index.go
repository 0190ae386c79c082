package index

// PostIndex is the post index as seen by sync, the watcher and the service.
type PostIndex interface {
	UpsertPost(p PostRow, body string) error
	DeletePost(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	Count() (int, error)
	Search(q SearchQuery) ([]SearchResult, error)
	Close() error
}

var _ PostIndex = (*DB)(nil)
