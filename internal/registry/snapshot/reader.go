package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"time"
)

// Snapshot is a fully parsed and verified .qmsnap file.
type Snapshot struct {
	ShardID   int
	CreatedAt time.Time
	Records   []Record
}

// Open reads and verifies the snapshot at path. It checks the magic bytes,
// format version, payload checksum, and record count before returning any
// records, so a truncated or corrupted file never loads partially.
func Open(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("invalid snapshot file: %d bytes, need at least %d", len(data), HeaderSize+FooterSize)
	}

	header := Header{
		Magic:        binary.LittleEndian.Uint32(data[0:4]),
		Version:      binary.LittleEndian.Uint32(data[4:8]),
		ShardID:      binary.LittleEndian.Uint32(data[8:12]),
		PatternCount: binary.LittleEndian.Uint32(data[12:16]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(data[16:24])),
		PayloadSize:  int64(binary.LittleEndian.Uint64(data[24:32])),
	}
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid snapshot file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", header.Version)
	}
	if int64(len(data)) != int64(HeaderSize)+header.PayloadSize+int64(FooterSize) {
		return nil, fmt.Errorf("invalid snapshot file: payload size %d does not match file size %d", header.PayloadSize, len(data))
	}

	payload := data[HeaderSize : int64(HeaderSize)+header.PayloadSize]
	footer := data[len(data)-FooterSize:]

	if checksum := binary.LittleEndian.Uint32(footer[0:4]); checksum != crc32.ChecksumIEEE(payload) {
		return nil, fmt.Errorf("invalid snapshot file: checksum mismatch")
	}

	var records []Record
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("parsing snapshot records: %w", err)
	}
	if uint32(len(records)) != header.PatternCount {
		return nil, fmt.Errorf("invalid snapshot file: header says %d patterns, payload has %d", header.PatternCount, len(records))
	}

	return &Snapshot{
		ShardID:   int(header.ShardID),
		CreatedAt: time.Unix(header.CreatedAt, 0).UTC(),
		Records:   records,
	}, nil
}
