package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const recordFormatVersionCurrent = 1

const (
	maxUserIDLen     = 255
	maxDeviceIPLen   = 64
	maxDeviceNameLen = 128
	maxUserAgentLen  = 512
)

// ErrCorruptRecord is returned when a stored record cannot be decoded.
var ErrCorruptRecord = errors.New("session record corrupt")

// Encode serializes r into the current binary format.
//
// Layout (big-endian):
//
//	u8  version
//	u8  len(user_id)   user_id
//	i64 token_version
//	u16 len(ip)        ip
//	u16 len(ua)        user_agent
//	u16 len(name)      device name
//	i64 created_at
//	i64 expires_at
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil session record")
	}
	if r.UserID == "" {
		return nil, errors.New("session record missing user id")
	}
	if len(r.UserID) > maxUserIDLen {
		return nil, errors.New("userID too long")
	}

	var buf bytes.Buffer
	buf.Grow(1 + 1 + len(r.UserID) + 8 + 6 + len(r.Device.IP) + len(r.Device.UserAgent) + len(r.Device.Name) + 16)

	buf.WriteByte(recordFormatVersionCurrent)
	buf.WriteByte(byte(len(r.UserID)))
	buf.WriteString(r.UserID)

	if err := binary.Write(&buf, binary.BigEndian, r.TokenVersion); err != nil {
		return nil, err
	}

	writeString16(&buf, clamp(r.Device.IP, maxDeviceIPLen))
	writeString16(&buf, clamp(r.Device.UserAgent, maxUserAgentLen))
	writeString16(&buf, clamp(r.Device.Name, maxDeviceNameLen))

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses data produced by [Encode]. The returned record has an empty
// JTI; callers set it from the key.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if version != recordFormatVersionCurrent {
		return nil, fmt.Errorf("%w: unsupported session format version %d", ErrCorruptRecord, version)
	}

	r := &Record{}

	userLen, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	r.UserID = string(userID)

	if err := binary.Read(reader, binary.BigEndian, &r.TokenVersion); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	if r.Device.IP, err = readString16(reader, maxDeviceIPLen); err != nil {
		return nil, err
	}
	if r.Device.UserAgent, err = readString16(reader, maxUserAgentLen); err != nil {
		return nil, err
	}
	if r.Device.Name, err = readString16(reader, maxDeviceNameLen); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &r.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	if reader.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptRecord, reader.Len())
	}

	return r, nil
}

func writeString16(buf *bytes.Buffer, s string) {
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

func readString16(reader *bytes.Reader, limit int) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if int(n) > limit {
		return "", fmt.Errorf("%w: field length %d exceeds %d", ErrCorruptRecord, n, limit)
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(reader, out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return string(out), nil
}

// clamp truncates s to at most limit bytes. limit never exceeds MaxUint16.
func clamp(s string, limit int) string {
	if limit > math.MaxUint16 {
		limit = math.MaxUint16
	}
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
