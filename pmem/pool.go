package pmem

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Ptr is a byte offset into a Pool. It plays the role of a PMDK persistent
// pointer / OID: NullPtr is the one value that can never name a real
// allocation, because offset 0 always falls inside the pool header.
type Ptr uint64

// NullPtr is the pmem equivalent of OID_NULL.
const NullPtr Ptr = 0

const (
	magic      = "PMEMKVP1"
	headerSize = 64

	offMagic    = 0
	offVersion  = 8
	offPoolSize = 16
	offRootPtr  = 24
	offBumpNext = 32

	formatVersion = 1
)

// Pool is a fixed-size, byte-addressable persistent-memory region backed by
// a memory-mapped file. All mutation goes through Transaction; plain reads
// (ReadAt and friends) do not require one, mirroring how PMDK reads never
// need a transaction while writes do.
type Pool struct {
	file   *os.File
	data   []byte
	size   int64
	logger *zap.Logger

	mu       sync.Mutex
	freelist map[int][]Ptr // volatile reuse pool for freed allocations, keyed by exact size
}

// Option configures a Pool at Create/Open time.
type Option func(*Pool)

// WithLogger attaches a structured logger to the pool. The zero value logs
// nothing (zap.NewNop), matching the default used throughout this module.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// Create makes a new pool file of the given size, or truncates and
// reinitializes it if it already exists. size must be large enough to hold
// the header plus at least one allocation; callers get an
// ErrTransactionAllocFailure from the first Alloc if it is not.
func Create(path string, size int64, opts ...Option) (*Pool, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "pmem: create pool file")
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "pmem: truncate pool file")
	}

	p, err := mapPool(f, size, opts...)
	if err != nil {
		return nil, err
	}

	copy(p.data[offMagic:offMagic+len(magic)], magic)
	binary.LittleEndian.PutUint32(p.data[offVersion:], formatVersion)
	binary.LittleEndian.PutUint64(p.data[offPoolSize:], uint64(size))
	binary.LittleEndian.PutUint64(p.data[offRootPtr:], uint64(NullPtr))
	binary.LittleEndian.PutUint64(p.data[offBumpNext:], uint64(headerSize))
	if err := unix.Msync(p.data, unix.MS_SYNC); err != nil {
		p.Close()
		return nil, errors.Wrap(err, "pmem: msync new pool header")
	}

	p.logger.Info("pool created", zap.String("path", path), zap.Int64("size", size))
	return p, nil
}

// Open maps an existing pool file. It fails with ErrPoolCorrupt if the
// header magic or recorded size do not match the file.
func Open(path string, opts ...Option) (*Pool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "pmem: open pool file")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "pmem: stat pool file")
	}

	p, err := mapPool(f, info.Size(), opts...)
	if err != nil {
		return nil, err
	}

	if string(p.data[offMagic:offMagic+len(magic)]) != magic {
		p.Close()
		return nil, ErrPoolCorrupt
	}
	recorded := binary.LittleEndian.Uint64(p.data[offPoolSize:])
	if int64(recorded) != info.Size() {
		p.Close()
		return nil, ErrPoolCorrupt
	}

	p.logger.Info("pool opened", zap.String("path", path), zap.Int64("size", info.Size()))
	return p, nil
}

func mapPool(f *os.File, size int64, opts ...Option) (*Pool, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "pmem: mmap pool file")
	}
	p := &Pool{
		file:     f,
		data:     data,
		size:     size,
		logger:   zap.NewNop(),
		freelist: make(map[int][]Ptr),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Close unmaps the pool and closes the backing file.
func (p *Pool) Close() error {
	var err error
	if p.data != nil {
		if syncErr := unix.Msync(p.data, unix.MS_SYNC); syncErr != nil && err == nil {
			err = errors.Wrap(syncErr, "pmem: msync on close")
		}
		if unmapErr := unix.Munmap(p.data); unmapErr != nil && err == nil {
			err = errors.Wrap(unmapErr, "pmem: munmap")
		}
		p.data = nil
	}
	if closeErr := p.file.Close(); closeErr != nil && err == nil {
		err = errors.Wrap(closeErr, "pmem: close pool file")
	}
	p.logger.Info("pool closed")
	return err
}

// Root returns the pool's singleton root pointer, or NullPtr if the pool
// was just created and no root has been installed yet.
func (p *Pool) Root() Ptr {
	return Ptr(binary.LittleEndian.Uint64(p.data[offRootPtr:]))
}

// ReadAt returns a copy of n bytes starting at ptr. Callers must not rely on
// aliasing the pool's backing storage.
func (p *Pool) ReadAt(ptr Ptr, n int) []byte {
	buf := make([]byte, n)
	copy(buf, p.data[ptr:int(ptr)+n])
	return buf
}

// ReadUint8 reads a single byte at ptr.
func (p *Pool) ReadUint8(ptr Ptr) uint8 {
	return p.data[ptr]
}

// ReadUint32 reads a little-endian uint32 at ptr.
func (p *Pool) ReadUint32(ptr Ptr) uint32 {
	return binary.LittleEndian.Uint32(p.data[ptr:])
}

// ReadUint64 reads a little-endian uint64 at ptr.
func (p *Pool) ReadUint64(ptr Ptr) uint64 {
	return binary.LittleEndian.Uint64(p.data[ptr:])
}

// Size returns the total size of the pool in bytes.
func (p *Pool) Size() int64 {
	return p.size
}

func msync(p *Pool) error {
	if err := unix.Msync(p.data, unix.MS_SYNC); err != nil {
		return errors.Wrap(err, "pmem: msync")
	}
	return nil
}
