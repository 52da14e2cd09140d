// Package snapshot serialises compiled-pattern registries to disk. Each
// shard owns one .qmsnap file that is atomically replaced on every write,
// so a reader never observes a partially written snapshot.
package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"
)

// MagicBytes identifies a valid .qmsnap snapshot file ("QMS1").
const (
	MagicBytes    uint32 = 0x514D5331
	FormatVersion uint32 = 1
	HeaderSize    int    = 32
	FooterSize    int    = 8
)

// Header is the fixed-size block written at the start of every snapshot.
// All integers are little-endian.
type Header struct {
	Magic        uint32
	Version      uint32
	ShardID      uint32
	PatternCount uint32
	CreatedAt    int64
	PayloadSize  int64
}

// Record is one compiled pattern as persisted in a shard snapshot. Tokens
// are stored post-tokenization so a loader rebuilds the exact matcher the
// registry compiled, independent of tokenizer changes in between.
type Record struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Tokens             []string  `json:"tokens"`
	AllowedDifferences int       `json:"allowed_differences"`
	NomatchMultiplier  float64   `json:"nomatch_multiplier"`
	Threshold          float64   `json:"threshold"`
	RegisteredAt       time.Time `json:"registered_at"`
	CompiledAt         time.Time `json:"compiled_at"`
}

// Filename returns the snapshot file name for a shard.
func Filename(shardID int) string {
	return fmt.Sprintf("registry-shard%02d.qmsnap", shardID)
}

// Writer serialises pattern records into .qmsnap snapshot files.
type Writer struct {
	dir string
}

// NewWriter creates a Writer that writes snapshots into the given directory.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write atomically replaces the snapshot file for shardID with the given
// records. An empty record set is valid and produces an empty snapshot. It
// writes to a .tmp file first and renames on success, returning the final
// file name.
func (w *Writer) Write(shardID int, records []Record) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshaling snapshot records: %w", err)
	}

	name := Filename(shardID)
	finalPath := filepath.Join(w.dir, name)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(shardID))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(records)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(header[24:32], uint64(len(payload)))
	if _, err := f.Write(header); err != nil {
		return "", fmt.Errorf("writing snapshot header: %w", err)
	}

	if _, err := f.Write(payload); err != nil {
		return "", fmt.Errorf("writing snapshot payload: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(payload))
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(records)))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing snapshot footer: %w", err)
	}

	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing snapshot file: %w", err)
	}
	f.Close()

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming snapshot file: %w", err)
	}
	return name, nil
}
