package storage

// Initer is implemented by stored top-level structures that need their nil
// maps (or other zero values) initialised after deserialization.
type Initer interface {
	Init()
}
