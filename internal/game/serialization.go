package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// SerializationChecksum is a deterministic fingerprint of a snapshot. Two
// snapshots with equal hashes describe the same game position.
type SerializationChecksum struct {
	Hash      string // SHA-256 of the canonical representation
	Timestamp string // when the snapshot was taken
	Version   int
}

// ComputeChecksum hashes the canonical representation of the snapshot.
// Timestamps do not contribute.
func (s *Snapshot) ComputeChecksum() (*SerializationChecksum, error) {
	hash := sha256.New()
	if _, err := hash.Write([]byte(s.canonical())); err != nil {
		return nil, fmt.Errorf("failed to compute hash: %w", err)
	}
	return &SerializationChecksum{
		Hash:      hex.EncodeToString(hash.Sum(nil)),
		Timestamp: s.Timestamp.Format("2006-01-02T15:04:05.000Z"),
		Version:   s.Version,
	}, nil
}

// canonical renders every field that matters to play in a fixed order,
// independent of map iteration or slice order where order is not meaningful.
func (s *Snapshot) canonical() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "MATCH:%s|%d|%s|%s|%d|%d|%t|%s\n",
		s.MatchID,
		s.Version,
		s.GamePhase,
		s.TurnPhase,
		s.TurnNumber,
		s.OrderIndex,
		s.Attacked,
		s.WinnerID,
	)

	r := s.Rules
	fmt.Fprintf(&buf, "RULES:%dx%d|%d|%v|%d|%v|%d/%d/%d|%d..%d|%d/%d/%d|%d/%d/%d\n",
		r.Board.Width, r.Board.Height, r.Board.CornerSize,
		r.Tiers, r.TokensPerTier, r.AutoDeployTiers,
		r.Mobility.Threshold, r.Mobility.Heavy, r.Mobility.Light,
		r.MinPlayers, r.MaxPlayers,
		r.ObjectiveQualifying, r.ObjectiveTurns, r.ObjectiveReduction,
		r.WinBase, r.WinMinimum, r.WinTurns,
	)

	events := make([]string, len(s.EventNodes))
	for i, p := range s.EventNodes {
		events[i] = p.String()
	}
	sort.Strings(events)
	buf.WriteString("EVENT_NODES:")
	buf.WriteString(strings.Join(events, ","))
	buf.WriteString("\n")

	// seating order matters
	buf.WriteString("SEATING:")
	buf.WriteString(strings.Join(s.Seating, ","))
	buf.WriteString("\n")

	players := append(s.Players[:0:0], s.Players...)
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	for _, p := range players {
		ids := append([]string(nil), p.TokenIDs...)
		sort.Strings(ids)
		fmt.Fprintf(&buf, "PLAYER:%s|%s|%d|%s\n", p.ID, p.Name, p.Seat, strings.Join(ids, ","))
	}

	tokens := append(s.Tokens[:0:0], s.Tokens...)
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ID < tokens[j].ID })
	for _, t := range tokens {
		pos := "-"
		if t.IsDeployed() {
			pos = t.Position.String()
		}
		fmt.Fprintf(&buf, "TOKEN:%s|%s|%d|%d|%s|%s\n", t.ID, t.OwnerID, t.MaxHealth, t.Health, t.Lifecycle, pos)
	}

	for _, tr := range s.Objectives {
		fmt.Fprintf(&buf, "OBJECTIVE:%s|%s|%s|%d|%t\n", tr.ID, tr.Position, tr.HolderID, tr.TurnsHeld, tr.Terminal)
	}
	fmt.Fprintf(&buf, "WIN:%s|%s|%s|%d|%t\n", s.Win.ID, s.Win.Position, s.Win.HolderID, s.Win.TurnsHeld, s.Win.Terminal)

	return buf.String()
}

// VerifyChecksum reports whether the snapshot still matches expected.
func (s *Snapshot) VerifyChecksum(expected *SerializationChecksum) (bool, error) {
	computed, err := s.ComputeChecksum()
	if err != nil {
		return false, fmt.Errorf("failed to compute checksum: %w", err)
	}
	return computed.Hash == expected.Hash, nil
}

// SerializeToBytes gob encodes the snapshot. Replay files and the
// snapshot store use this encoding.
func (s *Snapshot) SerializeToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializeFromBytes decodes a snapshot produced by SerializeToBytes.
func DeserializeFromBytes(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &s, nil
}

// ValidateSerializationRoundtrip checks that encoding and decoding s loses
// nothing, by comparing checksums.
func ValidateSerializationRoundtrip(s *Snapshot) error {
	originalChecksum, err := s.ComputeChecksum()
	if err != nil {
		return fmt.Errorf("failed to compute original checksum: %w", err)
	}

	data, err := s.SerializeToBytes()
	if err != nil {
		return fmt.Errorf("failed to serialize: %w", err)
	}

	decoded, err := DeserializeFromBytes(data)
	if err != nil {
		return fmt.Errorf("failed to deserialize: %w", err)
	}

	decodedChecksum, err := decoded.ComputeChecksum()
	if err != nil {
		return fmt.Errorf("failed to compute deserialized checksum: %w", err)
	}

	if originalChecksum.Hash != decodedChecksum.Hash {
		return fmt.Errorf("checksum mismatch: original=%s, deserialized=%s",
			originalChecksum.Hash, decodedChecksum.Hash)
	}
	return nil
}
