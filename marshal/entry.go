package marshal

import (
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/kit/errors"
)

// An encoded entry is a header, the encoded content and a checksum:
//
//	[0:8]   term
//	[8:12]  content length
//	[12:]   content
//	[n-8:n] xxhash64 of everything before
const (
	entryHeaderSize   = 12
	entryChecksumSize = 8
)

// ErrChecksumMismatch is returned when an entry fails its checksum.
var ErrChecksumMismatch = &errors.Error{
	Code: errors.EInternal,
	Msg:  "log entry checksum mismatch",
}

// MarshalEntry encodes e.
func MarshalEntry(e *coreraft.LogEntry) ([]byte, error) {
	content, err := MarshalContent(e.Content)
	if err != nil {
		return nil, err
	}

	b := make([]byte, entryHeaderSize, entryHeaderSize+len(content)+entryChecksumSize)
	binary.BigEndian.PutUint64(b[0:8], uint64(e.Term))
	binary.BigEndian.PutUint32(b[8:12], uint32(len(content)))
	b = append(b, content...)
	return binary.BigEndian.AppendUint64(b, xxhash.Sum64(b)), nil
}

// UnmarshalEntry decodes an entry encoded by MarshalEntry.
func UnmarshalEntry(b []byte) (*coreraft.LogEntry, error) {
	if len(b) < entryHeaderSize+entryChecksumSize {
		return nil, &errors.Error{Code: errors.EInvalid, Op: "marshal.UnmarshalEntry", Msg: "entry too short"}
	}
	n := int(binary.BigEndian.Uint32(b[8:12]))
	if len(b) != entryHeaderSize+n+entryChecksumSize {
		return nil, &errors.Error{Code: errors.EInvalid, Op: "marshal.UnmarshalEntry", Msg: "entry length mismatch"}
	}

	body := b[:entryHeaderSize+n]
	if xxhash.Sum64(body) != binary.BigEndian.Uint64(b[entryHeaderSize+n:]) {
		return nil, ErrChecksumMismatch
	}

	content, err := UnmarshalContent(body[entryHeaderSize:])
	if err != nil {
		return nil, err
	}
	return coreraft.NewLogEntry(int64(binary.BigEndian.Uint64(b[0:8])), content), nil
}

// EntryEncoder writes encoded entries to a stream.
type EntryEncoder struct {
	w io.Writer
}

// NewEntryEncoder returns a new instance of the EntryEncoder that
// will encode to a writer.
func NewEntryEncoder(w io.Writer) *EntryEncoder {
	return &EntryEncoder{w: w}
}

// Encode writes an entry to the encoder's writer.
func (enc *EntryEncoder) Encode(e *coreraft.LogEntry) error {
	b, err := MarshalEntry(e)
	if err != nil {
		return err
	}
	_, err = enc.w.Write(b)
	return err
}

// EntryDecoder reads entries written by an EntryEncoder.
type EntryDecoder struct {
	r io.Reader
}

// NewEntryDecoder returns a new instance of the EntryDecoder that
// will decode from a reader.
func NewEntryDecoder(r io.Reader) *EntryDecoder {
	return &EntryDecoder{r: r}
}

// Decode reads the next entry. It returns io.EOF at the end of the stream.
func (dec *EntryDecoder) Decode() (*coreraft.LogEntry, error) {
	var hdr [entryHeaderSize]byte
	if _, err := io.ReadFull(dec.r, hdr[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint32(hdr[8:12]))

	b := make([]byte, entryHeaderSize+n+entryChecksumSize)
	copy(b, hdr[:])
	if _, err := io.ReadFull(dec.r, b[entryHeaderSize:]); err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	} else if err != nil {
		return nil, err
	}
	return UnmarshalEntry(b)
}
