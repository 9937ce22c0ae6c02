/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package checkpointstore holds the durable-backend implementations for
// redo.CheckpointCoordinator's persisted watermark: a local file, an S3
// (or S3-compatible) bucket, and a Ceph RADOS pool. Grounded on the
// teacher's three persistence.PersistenceEngine backends
// (storage/persistence-files.go, storage/persistence-s3.go,
// storage/persistence-ceph.go) which cover the identical "one schema.json
// blob, backup-then-replace, multiple storage backends" shape.
package checkpointstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/relaycdc/redocore/redo"
)

// FileStore persists the checkpoint document as a JSON file, with the
// teacher's backup-then-replace pattern: the previous checkpoint is kept
// as checkpoint.json.old until the new one is durably written.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) SaveCheckpoint(cp redo.Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return err
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	if stat, err := os.Stat(s.path); err == nil && stat.Size() > 0 {
		os.Rename(s.path, s.path+".old")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) LoadCheckpoint() (redo.Checkpoint, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil || len(data) == 0 {
		data, err = os.ReadFile(s.path + ".old")
		if err != nil || len(data) == 0 {
			return redo.Checkpoint{}, false, nil
		}
	}
	var cp redo.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return redo.Checkpoint{}, false, fmt.Errorf("checkpointstore: corrupt checkpoint file: %w", err)
	}
	return cp, true, nil
}
