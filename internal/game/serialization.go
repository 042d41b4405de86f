package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SnapshotChecksum is a deterministic fingerprint of a snapshot.
// Checksums guard against divergent engine states across replay
// re-runs or network transmission.
type SnapshotChecksum struct {
	Hash    string // SHA-256 hash of the deterministic serialization
	Version int    // serialization version, for forward compatibility
}

// ComputeChecksum generates a deterministic checksum of the snapshot.
// The checksum is based on a sorted canonical representation, so two
// snapshots of identical engine state hash the same regardless of map
// iteration order.
func (s *Snapshot) ComputeChecksum() (*SnapshotChecksum, error) {
	deterministicData := s.buildDeterministicRepresentation()

	hash := sha256.New()
	if _, err := hash.Write([]byte(deterministicData)); err != nil {
		return nil, fmt.Errorf("failed to compute hash: %w", err)
	}

	return &SnapshotChecksum{
		Hash:    hex.EncodeToString(hash.Sum(nil)),
		Version: 1,
	}, nil
}

// buildDeterministicRepresentation creates a canonical string form of
// the snapshot that is independent of map iteration order.
func (s *Snapshot) buildDeterministicRepresentation() string {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("PLAYER:%s|%d|%d|%d|%d|%d|%t|%d\n",
		s.PlayerID,
		s.Score,
		s.Stars,
		s.Lines,
		s.Combo,
		s.Level,
		s.GameOver,
		s.TickRateMS,
	))

	// Board rows top to bottom. Row order matters, never sort.
	for y, row := range s.Board {
		cells := make([]string, len(row))
		for x, v := range row {
			cells[x] = strconv.Itoa(v)
		}
		buf.WriteString(fmt.Sprintf("ROW:%d:%s\n", y, strings.Join(cells, ",")))
	}

	if s.Current != nil {
		buf.WriteString(fmt.Sprintf("CURRENT:%s|%d|%d|%s\n",
			s.Current.Type, s.Current.X, s.Current.Y, shapeBits(s.Current.Shape)))
	} else {
		buf.WriteString("CURRENT:-\n")
	}

	// Preview queue order matters.
	buf.WriteString("NEXT:")
	buf.WriteString(strings.Join(s.Next, ","))
	buf.WriteString("\n")

	// Active effect ids - sorted.
	effects := make([]string, len(s.ActiveEffects))
	copy(effects, s.ActiveEffects)
	sort.Strings(effects)
	buf.WriteString("EFFECTS:")
	buf.WriteString(strings.Join(effects, ","))
	buf.WriteString("\n")

	// Timed effects - sorted by id.
	timed := make([]TimedEffectView, len(s.TimedEffects))
	copy(timed, s.TimedEffects)
	sort.Slice(timed, func(i, j int) bool { return timed[i].ID < timed[j].ID })
	for _, fx := range timed {
		buf.WriteString(fmt.Sprintf("TIMED:%s=%d/%d\n", fx.ID, fx.RemainingMS, fx.DurationMS))
	}

	// Piece-count effects consume in queue order, so don't sort.
	for i, fx := range s.PieceEffects {
		buf.WriteString(fmt.Sprintf("PIECEFX:%d:%s=%d/%d\n", i, fx.ID, fx.Remaining, fx.Total))
	}

	return buf.String()
}

// shapeBits flattens a piece shape into rows of 0/1 bits.
func shapeBits(shape [][]bool) string {
	rows := make([]string, len(shape))
	for i, row := range shape {
		var sb strings.Builder
		for _, filled := range row {
			if filled {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
		rows[i] = sb.String()
	}
	return strings.Join(rows, ";")
}

// VerifyChecksum reports whether the snapshot's computed checksum
// matches the expected one.
func (s *Snapshot) VerifyChecksum(expected *SnapshotChecksum) (bool, error) {
	computed, err := s.ComputeChecksum()
	if err != nil {
		return false, fmt.Errorf("failed to compute checksum: %w", err)
	}
	return computed.Hash == expected.Hash, nil
}

// SerializeToBytes serializes a snapshot to bytes using gob encoding,
// the same encoding replay files use.
func (s *Snapshot) SerializeToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializeFromBytes decodes a snapshot produced by SerializeToBytes.
func DeserializeFromBytes(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// ValidateSerializationRoundtrip checks that a snapshot survives a
// serialize/deserialize cycle without data loss by comparing checksums.
func ValidateSerializationRoundtrip(s *Snapshot) error {
	originalChecksum, err := s.ComputeChecksum()
	if err != nil {
		return fmt.Errorf("failed to compute original checksum: %w", err)
	}

	data, err := s.SerializeToBytes()
	if err != nil {
		return fmt.Errorf("failed to serialize: %w", err)
	}

	deserialized, err := DeserializeFromBytes(data)
	if err != nil {
		return fmt.Errorf("failed to deserialize: %w", err)
	}

	deserializedChecksum, err := deserialized.ComputeChecksum()
	if err != nil {
		return fmt.Errorf("failed to compute deserialized checksum: %w", err)
	}

	if originalChecksum.Hash != deserializedChecksum.Hash {
		return fmt.Errorf("checksum mismatch: original=%s, deserialized=%s",
			originalChecksum.Hash, deserializedChecksum.Hash)
	}
	return nil
}
