package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileStore keeps the ledger as one JSON object on local disk:
//
//	{"6051234": "2026-10-13T09:00:00Z", ...}
//
// Saves go to a temp file in the same directory and are renamed into place,
// so a crash mid-write leaves the previous ledger intact.
type FileStore struct {
	path string
}

// NewFileStore creates a store at path. The directory is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the ledger file. A missing file returns ErrNotFound.
func (s *FileStore) Load(ctx context.Context) (map[string]time.Time, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRecords(data)
}

// Save rewrites the whole file.
func (s *FileStore) Save(ctx context.Context, records map[string]time.Time) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// encodeRecords and decodeRecords define the JSON document shared by the
// file and S3 stores.
func encodeRecords(records map[string]time.Time) ([]byte, error) {
	doc := make(map[string]string, len(records))
	for id, t := range records {
		doc[id] = t.Format(time.RFC3339Nano)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding ledger: %w", err)
	}
	return data, nil
}

func decodeRecords(data []byte) (map[string]time.Time, error) {
	var doc map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding ledger: %w", err)
	}
	records := make(map[string]time.Time, len(doc))
	for id, raw := range doc {
		t, err := parseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding ledger entry %s: %w", id, err)
		}
		records[id] = t
	}
	return records, nil
}

// legacyLayout matches zone-less ISO timestamps written by older tooling
// ("2024-05-01T09:00:00.123456"); they are read as local time.
const legacyLayout = "2006-01-02T15:04:05.999999999"

func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation(legacyLayout, raw, time.Local)
}
