//go:build !ceph

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

import "github.com/relaycdc/redocore/redo"

// CephStore is a stub when Ceph support is not compiled in.
// Build with -tags=ceph to enable the RADOS-backed checkpoint store.
type CephStore struct {
	UserName    string
	ClusterName string
	ConfFile    string
	Pool        string
	ObjectName  string
}

func (s *CephStore) SaveCheckpoint(cp redo.Checkpoint) error {
	panic("ceph checkpoint store not compiled in. Build with: go build -tags=ceph")
}

func (s *CephStore) LoadCheckpoint() (redo.Checkpoint, bool, error) {
	panic("ceph checkpoint store not compiled in. Build with: go build -tags=ceph")
}
