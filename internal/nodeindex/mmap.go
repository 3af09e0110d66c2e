package nodeindex

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

const (
	// Each node entry: lat (int32) + lon (int32) = 8 bytes, fixed-point at
	// 1e7 scale (matches middle.ScaleCoord's slim-mode representation).
	entrySize = 8
	// Node IDs above this are rejected rather than grown into; a 10B-entry
	// address space covers the current planet dump with headroom.
	maxNodeID = 10_000_000_000
)

// MmapIndex is a memory-mapped dense array of node coordinates, used as the
// NodeStore during a from-scratch import so way/relation assembly never hits
// Postgres for a coordinate lookup. Coordinates for node N live at byte
// offset N*entrySize; a lookup is a slice index, not a query.
type MmapIndex struct {
	file   *os.File
	data   mmap.MMap
	size   int64
	writer bool
}

// NewMmapIndex creates a new mmap index for writing, backed by a sparse file
// so the address space can cover maxNodeID without committing disk for
// unwritten nodes.
func NewMmapIndex(path string) (*MmapIndex, error) {
	size := int64(maxNodeID) * entrySize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create mmap file: %w", err)
	}

	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to truncate file: %w", err)
	}

	data, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}

	return &MmapIndex{
		file:   f,
		data:   data,
		size:   size,
		writer: true,
	}, nil
}

// OpenMmapIndex opens an existing mmap index read-only, for a slim-mode
// update run that reuses an import's coordinate index instead of rebuilding it.
func OpenMmapIndex(path string) (*MmapIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mmap file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	size := info.Size()

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}

	return &MmapIndex{
		file:   f,
		data:   data,
		size:   size,
		writer: false,
	}, nil
}

// Put stores a node's coordinates
func (m *MmapIndex) Put(nodeID int64, lat, lon float64) {
	if nodeID < 0 || nodeID >= maxNodeID {
		return // Ignore out of range
	}

	offset := nodeID * entrySize

	// Convert to fixed-point (7 decimal places)
	latInt := int32(lat * 1e7)
	lonInt := int32(lon * 1e7)

	// Write directly to mmap
	binary.LittleEndian.PutUint32(m.data[offset:], uint32(latInt))
	binary.LittleEndian.PutUint32(m.data[offset+4:], uint32(lonInt))
}

// Get retrieves a node's coordinates
// Returns (0, 0, false) if the node doesn't exist
func (m *MmapIndex) Get(nodeID int64) (lat, lon float64, ok bool) {
	if nodeID < 0 || nodeID >= maxNodeID {
		return 0, 0, false
	}

	offset := nodeID * entrySize
	if offset+entrySize > m.size {
		return 0, 0, false
	}

	latInt := int32(binary.LittleEndian.Uint32(m.data[offset:]))
	lonInt := int32(binary.LittleEndian.Uint32(m.data[offset+4:]))

	// Check if node was written (0,0 is a valid location, but very rare)
	// We'll accept this edge case for simplicity
	if latInt == 0 && lonInt == 0 {
		return 0, 0, false
	}

	lat = float64(latInt) / 1e7
	lon = float64(lonInt) / 1e7
	return lat, lon, true
}

// Sync flushes pending writes to disk; a no-op on a read-only index.
func (m *MmapIndex) Sync() error {
	if !m.writer {
		return nil
	}
	return m.data.Flush()
}

// Close unmaps the index and closes the backing file.
func (m *MmapIndex) Close() error {
	if err := m.data.Unmap(); err != nil {
		m.file.Close()
		return err
	}
	return m.file.Close()
}
