// Package shm implements the flow engine's output-image surface: a
// named, mmapped file under /tmp into which the flow engine copies
// each running flow's primary input frame (the detector's own output
// is not written here). Grounded on
// golang.org/x/sys/unix for the mmap/ftruncate syscalls; no shared-
// memory library appears anywhere in the example pack, so this is the
// closest real ecosystem dependency for a syscall-level concern
// (the one pack file touching the same concern,
// other_examples/KennethSSSyyt-Raspi-Edge__go_server_main.go, stubs it
// out behind CGO rather than implementing it).
package shm

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Segment is a named shared-memory region sized to hold one BGR24
// image of fixed dimensions, preceded by a small header (width,
// height) so a reader can map it blind.
type Segment struct {
	mu     sync.Mutex
	name   string
	path   string
	fd     int
	size   int
	region []byte

	width, height int
}

const headerSize = 8 // width uint32 LE, height uint32 LE

// Open creates (or truncates) the named segment under /tmp sized for a
// width x height BGR24 image, and maps it into this process. name
// should already include the engine's flow-output naming convention
// (e.g. "blobserver_output_3"), matching the original's
// sprintf(shmFile, "/tmp/blobserver_output_%i", ...).
func Open(name string, width, height int) (*Segment, error) {
	path := "/tmp/" + name
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}

	size := headerSize + width*height*3
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: ftruncate %s: %w", path, err)
	}

	region, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}

	putU32(region[0:4], uint32(width))
	putU32(region[4:8], uint32(height))

	return &Segment{
		name: name, path: path, fd: fd, size: size,
		region: region, width: width, height: height,
	}, nil
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// WriteImage copies a BGR24 pixel buffer into the segment. pix must be
// exactly width*height*3 bytes; mismatched sizes are rejected rather
// than silently truncated or overrun.
func (s *Segment) WriteImage(pix []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := s.width * s.height * 3
	if len(pix) != want {
		return fmt.Errorf("shm: %s: expected %d bytes, got %d", s.name, want, len(pix))
	}
	copy(s.region[headerSize:], pix)
	return nil
}

// Name returns the segment's registry name.
func (s *Segment) Name() string { return s.name }

// Close unmaps and removes the backing file. Safe to call once.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.region == nil {
		return nil
	}
	err := unix.Munmap(s.region)
	s.region = nil
	unix.Close(s.fd)
	_ = unix.Unlink(s.path)
	return err
}
