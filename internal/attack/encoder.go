package attack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
	"unicode/utf8"
)

const patternFormatVersion = 1

var errCorruptPattern = errors.New("corrupt attack pattern")

// encodePattern writes a versioned binary record. The identifier is implied by
// the key and not stored per attempt.
func encodePattern(p Pattern) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(patternFormatVersion)

	if err := binary.Write(&buf, binary.BigEndian, p.LockoutLevel); err != nil {
		return nil, err
	}
	if len(p.Attempts) > 0xffff {
		return nil, errors.New("attempt history too large")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(p.Attempts))); err != nil {
		return nil, err
	}

	for _, a := range p.Attempts {
		if err := binary.Write(&buf, binary.BigEndian, a.Timestamp.UnixMilli()); err != nil {
			return nil, err
		}
		var success byte
		if a.Success {
			success = 1
		}
		buf.WriteByte(success)
		if err := writeShortString(&buf, a.Operation); err != nil {
			return nil, err
		}
		if err := writeShortString(&buf, a.ClientTag); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodePattern(data []byte, identifier string) (Pattern, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return Pattern{}, err
	}
	if version != patternFormatVersion {
		return Pattern{}, errCorruptPattern
	}

	var p Pattern
	if err := binary.Read(r, binary.BigEndian, &p.LockoutLevel); err != nil {
		return Pattern{}, err
	}
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return Pattern{}, err
	}

	p.Attempts = make([]Attempt, 0, n)
	for i := 0; i < int(n); i++ {
		var ms int64
		if err := binary.Read(r, binary.BigEndian, &ms); err != nil {
			return Pattern{}, err
		}
		success, err := r.ReadByte()
		if err != nil {
			return Pattern{}, err
		}
		op, err := readShortString(r)
		if err != nil {
			return Pattern{}, err
		}
		tag, err := readShortString(r)
		if err != nil {
			return Pattern{}, err
		}
		p.Attempts = append(p.Attempts, Attempt{
			Timestamp:  time.UnixMilli(ms),
			Identifier: identifier,
			Operation:  op,
			Success:    success == 1,
			ClientTag:  tag,
		})
	}
	if r.Len() != 0 {
		return Pattern{}, errCorruptPattern
	}
	return p, nil
}

// writeShortString writes a length-prefixed string of at most 255 bytes,
// truncating on a rune boundary.
func writeShortString(buf *bytes.Buffer, s string) error {
	if len(s) > 255 {
		cut := 255
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
