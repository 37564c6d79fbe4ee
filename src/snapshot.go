package seqflow

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire layout, in protobuf terms:
//
//	message Snapshot { repeated Entry entries = 1; }
//	message Entry {
//		string name = 1;
//		repeated uint64 shape = 2 [packed = true];
//		repeated double data = 3 [packed = true];
//	}
const (
	snapshotEntriesField protowire.Number = 1

	entryNameField  protowire.Number = 1
	entryShapeField protowire.Number = 2
	entryDataField  protowire.Number = 3
)

// SnapshotEntry is a named copy of one parameter tensor
type SnapshotEntry struct {
	Name  string
	Shape []int
	Data  []float64
}

// Snapshot holds copies of a network's trainable parameters. Gradients and
// optimizer state are not part of it.
type Snapshot struct {
	Entries []SnapshotEntry
}

// Snapshot copies the current parameters. Entry names are
// "<layer index>.<layer kind>.<parameter>", e.g. "1.lstm.weight_ih".
func (n *Network) Snapshot() *Snapshot {
	s := &Snapshot{}
	for i, layer := range n.layers {
		names := layer.paramNames()
		for j, p := range layer.parameters() {
			s.Entries = append(s.Entries, SnapshotEntry{
				Name:  fmt.Sprintf("%d.%s.%s", i, layer.name(), names[j]),
				Shape: p.Shape(),
				Data:  append([]float64(nil), p.data...),
			})
		}
	}
	return s
}

// Restore copies snapshot values into the network's parameters. Every
// parameter must be present with a matching shape.
func (n *Network) Restore(s *Snapshot) error {
	byName := make(map[string]*SnapshotEntry, len(s.Entries))
	for i := range s.Entries {
		byName[s.Entries[i].Name] = &s.Entries[i]
	}

	want := n.Snapshot()
	params := make([]*Tensor, 0, len(want.Entries))
	for _, layer := range n.layers {
		params = append(params, layer.parameters()...)
	}

	for i, w := range want.Entries {
		e, ok := byName[w.Name]
		if !ok {
			return errorf("snapshot is missing parameter %q", w.Name)
		}
		if !sameShape(e.Shape, w.Shape) || len(e.Data) != len(w.Data) {
			return errorf("snapshot parameter %q has shape %v, network expects %v", w.Name, e.Shape, w.Shape)
		}
		copy(params[i].data, e.Data)
	}
	return nil
}

// MarshalBinary encodes the snapshot in protobuf wire format
func (s *Snapshot) MarshalBinary() ([]byte, error) {
	var b []byte
	for _, e := range s.Entries {
		var eb []byte
		eb = protowire.AppendTag(eb, entryNameField, protowire.BytesType)
		eb = protowire.AppendString(eb, e.Name)

		var shape []byte
		for _, d := range e.Shape {
			shape = protowire.AppendVarint(shape, uint64(d))
		}
		eb = protowire.AppendTag(eb, entryShapeField, protowire.BytesType)
		eb = protowire.AppendBytes(eb, shape)

		data := make([]byte, 0, 8*len(e.Data))
		for _, v := range e.Data {
			data = protowire.AppendFixed64(data, math.Float64bits(v))
		}
		eb = protowire.AppendTag(eb, entryDataField, protowire.BytesType)
		eb = protowire.AppendBytes(eb, data)

		b = protowire.AppendTag(b, snapshotEntriesField, protowire.BytesType)
		b = protowire.AppendBytes(b, eb)
	}
	return b, nil
}

// UnmarshalBinary decodes protobuf wire format, skipping unknown fields
func (s *Snapshot) UnmarshalBinary(b []byte) error {
	s.Entries = nil
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errorf("snapshot: %v", protowire.ParseError(n))
		}
		b = b[n:]

		if num == snapshotEntriesField && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errorf("snapshot: %v", protowire.ParseError(n))
			}
			e, err := unmarshalEntry(v)
			if err != nil {
				return err
			}
			s.Entries = append(s.Entries, e)
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return errorf("snapshot: %v", protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

func unmarshalEntry(b []byte) (SnapshotEntry, error) {
	var e SnapshotEntry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, errorf("snapshot entry: %v", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == entryNameField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return e, errorf("snapshot entry name: %v", protowire.ParseError(n))
			}
			e.Name = v
			b = b[n:]

		case num == entryShapeField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, errorf("snapshot entry shape: %v", protowire.ParseError(n))
			}
			for len(v) > 0 {
				d, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return e, errorf("snapshot entry shape: %v", protowire.ParseError(m))
				}
				e.Shape = append(e.Shape, int(d))
				v = v[m:]
			}
			b = b[n:]

		case num == entryShapeField && typ == protowire.VarintType:
			d, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, errorf("snapshot entry shape: %v", protowire.ParseError(n))
			}
			e.Shape = append(e.Shape, int(d))
			b = b[n:]

		case num == entryDataField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, errorf("snapshot entry data: %v", protowire.ParseError(n))
			}
			if len(v)%8 != 0 {
				return e, errorf("snapshot entry data: packed length %d is not a multiple of 8", len(v))
			}
			for len(v) > 0 {
				bits, m := protowire.ConsumeFixed64(v)
				if m < 0 {
					return e, errorf("snapshot entry data: %v", protowire.ParseError(m))
				}
				e.Data = append(e.Data, math.Float64frombits(bits))
				v = v[m:]
			}
			b = b[n:]

		case num == entryDataField && typ == protowire.Fixed64Type:
			bits, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return e, errorf("snapshot entry data: %v", protowire.ParseError(n))
			}
			e.Data = append(e.Data, math.Float64frombits(bits))
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return e, errorf("snapshot entry: %v", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if product(e.Shape) != len(e.Data) {
		return e, errorf("snapshot entry %q: shape %v does not hold %d values", e.Name, e.Shape, len(e.Data))
	}
	return e, nil
}

// SaveSnapshot writes s to path, replacing any previous file atomically
func SaveSnapshot(path string, s *Snapshot) error {
	b, err := s.MarshalBinary()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("seqflow: create snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("seqflow: write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("seqflow: sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("seqflow: close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("seqflow: replace snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot
func LoadSnapshot(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seqflow: read snapshot: %w", err)
	}
	s := &Snapshot{}
	if err := s.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return s, nil
}
