package cache

import (
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// entry is the stored form of one cached embedding.
type entry struct {
	Provider  string
	Vector    []float32
	CreatedAt int64 // unix seconds
}

var vectorSer = ord.NewSliceSer[float32](raw.Float32)

// marshalEntry serializes an entry to bytes.
func marshalEntry(e *entry) []byte {
	size := ord.String.Size(e.Provider) +
		vectorSer.Size(e.Vector) +
		varint.Int64.Size(e.CreatedAt)
	bs := make([]byte, size)
	n := ord.String.Marshal(e.Provider, bs)
	n += vectorSer.Marshal(e.Vector, bs[n:])
	varint.Int64.Marshal(e.CreatedAt, bs[n:])
	return bs
}

// unmarshalEntry deserializes an entry from bytes.
func unmarshalEntry(bs []byte) (*entry, error) {
	provider, n, err := ord.String.Unmarshal(bs)
	if err != nil {
		return nil, err
	}
	vector, n2, err := vectorSer.Unmarshal(bs[n:])
	if err != nil {
		return nil, err
	}
	createdAt, _, err := varint.Int64.Unmarshal(bs[n+n2:])
	if err != nil {
		return nil, err
	}
	return &entry{Provider: provider, Vector: vector, CreatedAt: createdAt}, nil
}
