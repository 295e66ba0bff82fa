package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInsufficientUsage = errors.New("processed amount exceeds current usage")
	ErrNothingToRestore  = errors.New("restored amount exceeds processed usage")
	ErrInvalidMeter      = errors.New("invalid usage meter")
)

// Reading is the state of one usage meter
type Reading struct {
	OrgID     int64  `json:"org_id"`
	MeterID   string `json:"meter_id"`
	Current   uint64 `json:"current"`
	Processed uint64 `json:"processed"`
}

// Meter tracks metered usage per organization and meter
type Meter interface {
	// CurrentUsage returns the usage accumulated since the last processed renewal
	CurrentUsage(ctx context.Context, orgID int64, meterID string) (uint64, error)
	// Record adds amount to the current usage
	Record(ctx context.Context, orgID int64, meterID string, amount uint64) error
	// MarkProcessed moves amount from current to processed after a renewal
	// has been paid for it
	MarkProcessed(ctx context.Context, orgID int64, meterID string, amount uint64) error
	// Restore moves amount from processed back to current when the renewal
	// that processed it was not paid
	Restore(ctx context.Context, orgID int64, meterID string, amount uint64) error
}

type meterKey struct {
	orgID   int64
	meterID string
}

// MemoryMeter is a thread-safe in-memory Meter
type MemoryMeter struct {
	mu     sync.RWMutex
	meters map[meterKey]*Reading
}

// NewMemoryMeter creates an empty MemoryMeter
func NewMemoryMeter() *MemoryMeter {
	return &MemoryMeter{meters: make(map[meterKey]*Reading)}
}

var _ Meter = (*MemoryMeter)(nil)

func (m *MemoryMeter) CurrentUsage(ctx context.Context, orgID int64, meterID string) (uint64, error) {
	if meterID == "" {
		return 0, ErrInvalidMeter
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.meters[meterKey{orgID, meterID}]; ok {
		return r.Current, nil
	}
	return 0, nil
}

func (m *MemoryMeter) Record(ctx context.Context, orgID int64, meterID string, amount uint64) error {
	if meterID == "" {
		return ErrInvalidMeter
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.getOrCreate(orgID, meterID)
	r.Current += amount
	return nil
}

func (m *MemoryMeter) MarkProcessed(ctx context.Context, orgID int64, meterID string, amount uint64) error {
	if meterID == "" {
		return ErrInvalidMeter
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.getOrCreate(orgID, meterID)
	if r.Current < amount {
		return fmt.Errorf("%w: current %d, processed %d", ErrInsufficientUsage, r.Current, amount)
	}
	r.Current -= amount
	r.Processed += amount
	return nil
}

func (m *MemoryMeter) Restore(ctx context.Context, orgID int64, meterID string, amount uint64) error {
	if meterID == "" {
		return ErrInvalidMeter
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.getOrCreate(orgID, meterID)
	if r.Processed < amount {
		return fmt.Errorf("%w: processed %d, restored %d", ErrNothingToRestore, r.Processed, amount)
	}
	r.Processed -= amount
	r.Current += amount
	return nil
}

// Snapshot returns a copy of a meter's state
func (m *MemoryMeter) Snapshot(orgID int64, meterID string) Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.meters[meterKey{orgID, meterID}]; ok {
		return *r
	}
	return Reading{OrgID: orgID, MeterID: meterID}
}

func (m *MemoryMeter) getOrCreate(orgID int64, meterID string) *Reading {
	key := meterKey{orgID, meterID}
	r, ok := m.meters[key]
	if !ok {
		r = &Reading{OrgID: orgID, MeterID: meterID}
		m.meters[key] = r
	}
	return r
}
