// Package storage persists named blobs. The room store encodes its whole
// collection into a single blob, so backends only need whole-value reads
// and atomic whole-value writes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Read when no blob exists under the key.
var ErrNotFound = errors.New("blob not found")

// Backend is a flat key-value blob store.
type Backend interface {
	Read(ctx context.Context, key string) ([]byte, error)
	// Write replaces the value under key. A reader never observes a partially
	// written value.
	Write(ctx context.Context, key string, data []byte) error
	Close() error
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("blob key is required")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("invalid blob key %q", key)
	}
	return nil
}
