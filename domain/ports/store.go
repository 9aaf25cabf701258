package ports

import "time"

// BytecodeStore persists encoded module records keyed by module name.
type BytecodeStore interface {
	// Load returns the stored bytes and the time they were saved.
	// A missing entry returns an error matching fs.ErrNotExist.
	Load(name string) ([]byte, time.Time, error)

	Save(name string, data []byte) error
	Delete(name string) error
	Close() error
}
