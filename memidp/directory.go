package memidp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/authflow"
)

// ErrNotFound is returned by Update for an unknown user ID.
var ErrNotFound = errors.New("memidp: user not found")

// Directory is an in-memory authflow.UserDirectory.
type Directory struct {
	mu      sync.Mutex
	records []authflow.DirectoryRecord

	unavailable atomic.Bool
}

var _ authflow.UserDirectory = (*Directory)(nil)

func NewDirectory() *Directory {
	return &Directory{}
}

// SetUnavailable simulates a directory outage.
func (d *Directory) SetUnavailable(v bool) {
	d.unavailable.Store(v)
}

// Seed inserts rec without any uniqueness check, so tests can create
// duplicate records.
func (d *Directory) Seed(rec authflow.DirectoryRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, rec)
}

func (d *Directory) FindByEmail(ctx context.Context, email string) ([]authflow.DirectoryRecord, error) {
	if d.unavailable.Load() {
		return nil, ErrUnavailable
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []authflow.DirectoryRecord
	for _, r := range d.records {
		if r.Email == email {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d *Directory) Create(ctx context.Context, rec authflow.DirectoryRecord) error {
	if d.unavailable.Load() {
		return ErrUnavailable
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.records {
		if r.Email == rec.Email {
			return authflow.ErrDuplicateUser
		}
	}
	d.records = append(d.records, rec)
	return nil
}

func (d *Directory) Update(ctx context.Context, rec authflow.DirectoryRecord) error {
	if d.unavailable.Load() {
		return ErrUnavailable
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, r := range d.records {
		if r.UserID == rec.UserID {
			d.records[i] = rec
			return nil
		}
	}
	return ErrNotFound
}
