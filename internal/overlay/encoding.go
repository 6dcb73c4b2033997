package overlay

import (
	"encoding/binary"
	"errors"
	"time"

	"treemount/internal/objectstore"
)

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// appendTime encodes a timestamp as nanoseconds since the Unix epoch, UTC.
func appendTime(buf []byte, t time.Time) []byte {
	return appendUint64(buf, uint64(t.UnixNano()))
}

var errTruncated = errors.New("overlay: truncated directory record")

// reader is a small cursor over an encoded directory record, used by
// DecodeDir to avoid repeating bounds checks inline.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) byte_() (byte, error) {
	if r.pos+1 > len(r.data) {
		return 0, errTruncated
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, errTruncated
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *reader) time() (time.Time, error) {
	v, err := r.uint64()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, int64(v)).UTC(), nil
}

func (r *reader) hash() (objectstore.Hash, error) {
	b, err := r.bytes(objectstore.HashSize)
	if err != nil {
		return objectstore.ZeroHash, err
	}
	var h objectstore.Hash
	copy(h[:], b)
	return h, nil
}
