package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SequenceAllocator hands out document numbers from an atomic counter per
// sequence name. The upsert-returning statement makes concurrent allocations
// race-free, unlike count-based generation.
type SequenceAllocator struct {
	pool *pgxpool.Pool
}

// NewSequenceAllocator constructs the allocator.
func NewSequenceAllocator(pool *pgxpool.Pool) *SequenceAllocator {
	return &SequenceAllocator{pool: pool}
}

// Next returns the next formatted number for the sequence, e.g. SO-2603-00042.
func (a *SequenceAllocator) Next(ctx context.Context, prefix string) (string, error) {
	if a == nil {
		return "", errors.New("sequence allocator not initialised")
	}
	if prefix == "" {
		return "", errors.New("sequence prefix required")
	}
	var value int64
	err := a.pool.QueryRow(ctx, `
		INSERT INTO doc_sequences (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = doc_sequences.value + 1
		RETURNING value
	`, prefix).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("allocate sequence %s: %w", prefix, err)
	}
	return fmt.Sprintf("%s-%s-%05d", prefix, time.Now().Format("0601"), value), nil
}
