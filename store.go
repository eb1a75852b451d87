package timeline

// Store persists an ordered feed snapshot for warm starts. The cache itself
// never touches a Store; the owning application decides when to Save (say,
// on shutdown or after every reconciliation) and feeds the result of Load
// into Feed.Restore on startup.
type Store[K comparable, M any] interface {
	// Save replaces the persisted snapshot with envs.
	Save(envs []Envelope[K, M]) error

	// Load returns the persisted snapshot in order, nil if nothing was saved.
	Load() ([]Envelope[K, M], error)

	// Close closes the store.
	Close() error
}
