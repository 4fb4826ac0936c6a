package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	recordFormatVersion1 = 1

	// lastActivity is always the trailing 8 bytes so the touch script can
	// replace it without parsing the record.
	lastActivitySize = 8
)

// ErrRecordCorrupt is returned when a stored blob cannot be decoded.
var ErrRecordCorrupt = errors.New("session record corrupt")

// Encode serialises r as: version, len(accountId), accountId, createdAt, lastActivity.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil session record")
	}
	if len(r.AccountID) == 0 || len(r.AccountID) > 255 {
		return nil, errors.New("invalid account id length")
	}

	var buf bytes.Buffer
	buf.Grow(2 + len(r.AccountID) + 16)
	buf.WriteByte(recordFormatVersion1)
	buf.WriteByte(byte(len(r.AccountID)))
	buf.WriteString(r.AccountID)

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}
	buf.Write(encodeLastActivity(r.LastActivity))

	return buf.Bytes(), nil
}

// Decode parses a blob written by Encode. SessionID is not part of the blob.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != recordFormatVersion1 {
		return nil, ErrRecordCorrupt
	}

	n, err := reader.ReadByte()
	if err != nil || n == 0 {
		return nil, ErrRecordCorrupt
	}
	account := make([]byte, n)
	if _, err := io.ReadFull(reader, account); err != nil {
		return nil, ErrRecordCorrupt
	}

	r := &Record{AccountID: string(account)}
	if err := binary.Read(reader, binary.BigEndian, &r.CreatedAt); err != nil {
		return nil, ErrRecordCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &r.LastActivity); err != nil {
		return nil, ErrRecordCorrupt
	}
	if reader.Len() != 0 {
		return nil, ErrRecordCorrupt
	}
	return r, nil
}

func encodeLastActivity(unix int64) []byte {
	out := make([]byte, lastActivitySize)
	binary.BigEndian.PutUint64(out, uint64(unix))
	return out
}
