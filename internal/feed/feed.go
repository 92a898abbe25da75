// Package feed writes listing records as JSON Lines, one object per line.
package feed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"rightmove-crawler/internal/models"
)

// Writer appends listings to a JSON-Lines file. Safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	path    string
	written int
}

// NewWriter opens (or truncates) the feed file at path, creating parent
// directories as needed.
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create feed directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed file: %w", err)
	}

	return &Writer{
		file: f,
		buf:  bufio.NewWriter(f),
		path: path,
	}, nil
}

// NewAppendWriter opens the feed file for appending, keeping existing records.
func NewAppendWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create feed directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed file: %w", err)
	}

	return &Writer{
		file: f,
		buf:  bufio.NewWriter(f),
		path: path,
	}, nil
}

// Append writes one listing as a single JSON line and flushes it to disk, so
// an interrupted crawl keeps everything written so far.
func (w *Writer) Append(listing *models.Listing) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("failed to marshal listing %s: %w", listing.ID, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.buf.Write(data); err != nil {
		return fmt.Errorf("failed to write feed record: %w", err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write feed record: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush feed: %w", err)
	}
	w.written++
	return nil
}

// Written returns how many records were appended through this writer.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Path returns the feed file path.
func (w *Writer) Path() string {
	return w.path
}

// Close flushes and closes the feed file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush feed: %w", err)
	}
	return w.file.Close()
}
