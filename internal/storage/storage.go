// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package storage keeps serialized PRE artifacts (public keys, ciphertext
// envelopes and re-encryption keys) addressed by the SHA-256 of their bytes.
// Secret keys never pass through this package.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Common errors.
var (
	ErrNotFound      = errors.New("artifact not found")
	ErrStorageFull   = errors.New("storage capacity exceeded")
	ErrInvalidHandle = errors.New("invalid artifact handle")
)

// Handle is the hex SHA-256 of an artifact.
type Handle string

// ComputeHandle returns the handle of data.
func ComputeHandle(data []byte) Handle {
	hash := sha256.Sum256(data)
	return Handle(hex.EncodeToString(hash[:]))
}

// Validate reports ErrInvalidHandle unless h is 64 lowercase hex digits.
func (h Handle) Validate() error {
	if len(h) != 2*sha256.Size {
		return fmt.Errorf("%w: %q", ErrInvalidHandle, string(h))
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: %q", ErrInvalidHandle, string(h))
		}
	}
	return nil
}

// Storage is a content-addressed artifact store. Storing the same bytes
// twice returns the same handle and keeps one copy.
type Storage interface {
	// Store saves data and returns its handle.
	Store(ctx context.Context, data []byte) (Handle, error)
	// Load retrieves an artifact by handle.
	Load(ctx context.Context, handle Handle) ([]byte, error)
	// Delete removes an artifact.
	Delete(ctx context.Context, handle Handle) error
	// Exists checks if an artifact exists.
	Exists(ctx context.Context, handle Handle) (bool, error)
	// Close releases the backend.
	Close() error
}

// MemoryStorage keeps artifacts in a map, bounded by a byte capacity.
type MemoryStorage struct {
	mu       sync.RWMutex
	data     map[Handle][]byte
	capacity int64
	size     int64
}

// NewMemoryStorage creates a store holding at most capacityMB megabytes.
func NewMemoryStorage(capacityMB int64) *MemoryStorage {
	return &MemoryStorage{
		data:     make(map[Handle][]byte),
		capacity: capacityMB * 1024 * 1024,
	}
}

func (s *MemoryStorage) Store(_ context.Context, data []byte) (Handle, error) {
	handle := ComputeHandle(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[handle]; ok {
		return handle, nil
	}
	if s.size+int64(len(data)) > s.capacity {
		return "", fmt.Errorf("%w: %d of %d bytes used", ErrStorageFull, s.size, s.capacity)
	}

	s.data[handle] = append([]byte(nil), data...)
	s.size += int64(len(data))
	return handle, nil
}

func (s *MemoryStorage) Load(_ context.Context, handle Handle) ([]byte, error) {
	if err := handle.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[handle]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStorage) Delete(_ context.Context, handle Handle) error {
	if err := handle.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.data[handle]
	if !ok {
		return ErrNotFound
	}
	s.size -= int64(len(data))
	delete(s.data, handle)
	return nil
}

func (s *MemoryStorage) Exists(_ context.Context, handle Handle) (bool, error) {
	if err := handle.Validate(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[handle]
	return ok, nil
}

// Size returns the number of stored bytes.
func (s *MemoryStorage) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[Handle][]byte)
	s.size = 0
	return nil
}

// FileStorage keeps one file per artifact under a base directory, sharded by
// the first two hex digits of the handle.
type FileStorage struct {
	baseDir string
}

// NewFileStorage creates baseDir if needed.
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStorage{baseDir: baseDir}, nil
}

func (s *FileStorage) path(handle Handle) string {
	h := string(handle)
	return filepath.Join(s.baseDir, h[:2], h)
}

func (s *FileStorage) Store(_ context.Context, data []byte) (Handle, error) {
	handle := ComputeHandle(data)
	path := s.path(handle)

	if _, err := os.Stat(path); err == nil {
		return handle, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create shard dir: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial artifact.
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	return handle, nil
}

func (s *FileStorage) Load(_ context.Context, handle Handle) ([]byte, error) {
	if err := handle.Validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(handle))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

func (s *FileStorage) Delete(_ context.Context, handle Handle) error {
	if err := handle.Validate(); err != nil {
		return err
	}
	if err := os.Remove(s.path(handle)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (s *FileStorage) Exists(_ context.Context, handle Handle) (bool, error) {
	if err := handle.Validate(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(handle))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat file: %w", err)
}

func (s *FileStorage) Close() error {
	return nil
}
