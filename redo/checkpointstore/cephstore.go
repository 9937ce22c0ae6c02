//go:build ceph

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
package checkpointstore

import (
	"encoding/json"
	"fmt"
	"path"
	"sync"

	"github.com/ceph/go-ceph/rados"

	"github.com/relaycdc/redocore/redo"
)

// CephStore persists the checkpoint document as one RADOS object.
// Grounded on storage/persistence-ceph.go's CephStorage, gated behind the
// same "ceph" build tag since librados requires cgo and the Ceph client
// libraries at build time — not every operator building this module has
// them installed.
type CephStore struct {
	UserName    string
	ClusterName string
	ConfFile    string
	Pool        string
	ObjectName  string

	mu     sync.Mutex
	conn   *rados.Conn
	ioctx  *rados.IOContext
	opened bool
}

func (s *CephStore) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil
	}
	conn, err := rados.NewConnWithClusterAndUser(s.ClusterName, s.UserName)
	if err != nil {
		return err
	}
	if s.ConfFile != "" {
		if err := conn.ReadConfigFile(s.ConfFile); err != nil {
			return err
		}
	} else {
		_ = conn.ReadDefaultConfigFile()
	}
	if err := conn.Connect(); err != nil {
		return err
	}
	ioctx, err := conn.OpenIOContext(s.Pool)
	if err != nil {
		conn.Shutdown()
		return err
	}
	s.conn = conn
	s.ioctx = ioctx
	s.opened = true
	return nil
}

func (s *CephStore) obj() string {
	name := s.ObjectName
	if name == "" {
		name = "checkpoint.json"
	}
	return path.Join(name)
}

func (s *CephStore) SaveCheckpoint(cp redo.Checkpoint) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return s.ioctx.WriteFull(s.obj(), data)
}

func (s *CephStore) LoadCheckpoint() (redo.Checkpoint, bool, error) {
	if err := s.ensureOpen(); err != nil {
		return redo.Checkpoint{}, false, err
	}
	stat, err := s.ioctx.Stat(s.obj())
	if err != nil {
		return redo.Checkpoint{}, false, nil
	}
	data := make([]byte, stat.Size)
	n, err := s.ioctx.Read(s.obj(), data, 0)
	if err != nil || n == 0 {
		return redo.Checkpoint{}, false, nil
	}
	var cp redo.Checkpoint
	if err := json.Unmarshal(data[:n], &cp); err != nil {
		return redo.Checkpoint{}, false, fmt.Errorf("checkpointstore: corrupt checkpoint object: %w", err)
	}
	return cp, true, nil
}
