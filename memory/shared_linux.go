package memory

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Shared is a buffer backed by a memfd mapping that can be passed to other
// processes by its file descriptor.
type Shared struct {
	region
	fd int
}

// NewShared creates anonymous memory file of size bytes and maps it.
func NewShared(name string, size int) (*Shared, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("memfd truncate: %w", err)
	}
	s, err := mapShared(fd, size, true)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return s, nil
}

// Map maps size bytes of memory file referenced by fd. The descriptor is
// owned by the returned buffer.
func Map(fd, size int, writable bool) (*Shared, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return mapShared(fd, size, writable)
}

func mapShared(fd, size int, writable bool) (*Shared, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(fd, 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &Shared{
		region: region{
			data:     data,
			readable: true,
			writable: writable,
		},
		fd: fd,
	}, nil
}

// Fd returns file descriptor of the memory file.
func (s *Shared) Fd() int {
	return s.fd
}

// Close unmaps the region and closes the descriptor.
func (s *Shared) Close() error {
	if err := unix.Munmap(s.data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	s.data = nil
	return unix.Close(s.fd)
}
