package memory

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/tailored-agentic-units/llamachat/engine"
)

// SnapshotVersion is the encoding version written by Encode.
const SnapshotVersion = 1

const snapshotExt = ".snap"

// Snapshot is the persisted form of a session. Positions in Turns and
// Marks index into Tokens.
type Snapshot struct {
	Version      int            `cbor:"1,keyasint"`
	SessionID    string         `cbor:"2,keyasint"`
	Template     string         `cbor:"3,keyasint,omitempty"`
	Tokens       []engine.Token `cbor:"4,keyasint"`
	SystemLength int            `cbor:"5,keyasint"`
	Turns        []int          `cbor:"6,keyasint,omitempty"`
	Marks        []int          `cbor:"7,keyasint,omitempty"`
	Manual       bool           `cbor:"8,keyasint,omitempty"`
	Role         string         `cbor:"9,keyasint,omitempty"`
	CreatedAt    int64          `cbor:"10,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("memory: CBOR encoder initialization failed: " + err.Error())
	}

	// Token histories of large contexts exceed the default array limit.
	decMode, err = cbor.DecOptions{MaxArrayElements: 1 << 24}.DecMode()
	if err != nil {
		panic("memory: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("memory: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic("memory: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode serializes s. The same snapshot always encodes to the same bytes.
func Encode(s *Snapshot) ([]byte, error) {
	data, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return zstdEncoder.EncodeAll(data, nil), nil
}

// Decode parses data produced by Encode.
func Decode(data []byte) (*Snapshot, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var s Snapshot
	if err := decMode.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, s.Version)
	}
	if s.SystemLength < 0 || s.SystemLength > len(s.Tokens) {
		return nil, fmt.Errorf("%w: system length %d outside %d tokens", ErrCorrupt, s.SystemLength, len(s.Tokens))
	}
	for _, p := range slices.Concat(s.Turns, s.Marks) {
		if p < 0 || p > len(s.Tokens) {
			return nil, fmt.Errorf("%w: position %d outside %d tokens", ErrCorrupt, p, len(s.Tokens))
		}
	}
	return &s, nil
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidName reports whether name can be used for a snapshot.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Snapshots stores named session snapshots in a Store.
type Snapshots struct {
	store Store
}

// NewSnapshots creates a Snapshots over store.
func NewSnapshots(store Store) *Snapshots {
	return &Snapshots{store: store}
}

func snapshotKey(name string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name + snapshotExt, nil
}

// Save encodes s and stores it under name, replacing any previous
// snapshot of the same name.
func (s *Snapshots) Save(ctx context.Context, name string, snap *Snapshot) error {
	key, err := snapshotKey(name)
	if err != nil {
		return err
	}
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	return s.store.Save(ctx, Entry{Key: key, Value: data})
}

// Load returns the snapshot stored under name.
func (s *Snapshots) Load(ctx context.Context, name string) (*Snapshot, error) {
	key, err := snapshotKey(name)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	snap, err := Decode(entries[0].Value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return snap, nil
}

// List returns the names of all stored snapshots in sorted order.
func (s *Snapshots) List(ctx context.Context) ([]string, error) {
	keys, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, key := range keys {
		if name, ok := strings.CutSuffix(key, snapshotExt); ok && ValidName(name) {
			names = append(names, name)
		}
	}
	return names, nil
}

// Delete removes the snapshot stored under name.
func (s *Snapshots) Delete(ctx context.Context, name string) error {
	key, err := snapshotKey(name)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, key)
}
