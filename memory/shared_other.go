//go:build !linux

package memory

// Shared is not available on this platform.
type Shared struct {
	region
}

// NewShared always fails with ErrSharedUnsupported.
func NewShared(name string, size int) (*Shared, error) {
	return nil, ErrSharedUnsupported
}

// Map always fails with ErrSharedUnsupported.
func Map(fd, size int, writable bool) (*Shared, error) {
	return nil, ErrSharedUnsupported
}

// Fd returns -1.
func (s *Shared) Fd() int {
	return -1
}

// Close does nothing.
func (s *Shared) Close() error {
	return nil
}
