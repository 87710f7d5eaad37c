package rate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const recordFormatVersion = 1

// Record is the persisted limiter state for one (identifier, operation) key.
type Record struct {
	TotalFailedAttempts  uint32
	NextAttemptAllowedAt time.Time
	IsLocked             bool
	LockoutEndsAt        time.Time
	CurrentDelay         time.Duration
}

// IsZero reports whether r carries no failures.
func (r Record) IsZero() bool {
	return r.TotalFailedAttempts == 0 && !r.IsLocked
}

// settle returns r as it reads at now: a lockout that has run out yields the
// zero record.
func (r Record) settle(now time.Time) Record {
	if r.IsLocked && !now.Before(r.LockoutEndsAt) {
		return Record{}
	}
	return r
}

var errCorruptRecord = errors.New("corrupt rate limit record")

func encodeRecord(r Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(recordFormatVersion)

	var flags byte
	if r.IsLocked {
		flags |= 1
	}
	buf.WriteByte(flags)

	fields := []any{
		r.TotalFailedAttempts,
		unixMilli(r.NextAttemptAllowedAt),
		unixMilli(r.LockoutEndsAt),
		r.CurrentDelay.Milliseconds(),
	}
	for _, f := range fields {
		if err := binary.Write(&buf, binary.BigEndian, f); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (Record, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return Record{}, err
	}
	if version != recordFormatVersion {
		return Record{}, errCorruptRecord
	}
	flags, err := r.ReadByte()
	if err != nil {
		return Record{}, err
	}

	var (
		rec                 Record
		nextMs, lockMs, dMs int64
	)
	for _, f := range []any{&rec.TotalFailedAttempts, &nextMs, &lockMs, &dMs} {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return Record{}, err
		}
	}
	if r.Len() != 0 {
		return Record{}, errCorruptRecord
	}

	rec.IsLocked = flags&1 != 0
	rec.NextAttemptAllowedAt = fromUnixMilli(nextMs)
	rec.LockoutEndsAt = fromUnixMilli(lockMs)
	rec.CurrentDelay = time.Duration(dMs) * time.Millisecond
	return rec, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
