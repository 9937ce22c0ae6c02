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
package redo

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// TableMeta is the schema knowledge the decoder needs about one table: its
// qualified name and column layout, resolved by object id (obj/dataObj).
type TableMeta struct {
	Schema      string
	Name        string
	Obj         uint32
	DataObj     uint32
	Columns     []ColumnMeta
	SuppLogAll  bool // ALTER TABLE ... ADD SUPPLEMENTAL LOG DATA (ALL) COLUMNS
}

// ColumnMeta describes one column's static properties.
type ColumnMeta struct {
	Name       string
	ColNum     uint16
	CharsetID  uint16
	IsLob      bool
	LobStorage LobStorageKind
}

// LobMeta is the schema knowledge needed to reassemble a LOB column: which
// table/column it belongs to and its storage layout.
type LobMeta struct {
	Table   *TableMeta
	ColNum  uint16
	Storage LobStorageKind
}

// Dictionary resolves object ids to schema metadata. Grounded on
// storage/tables_catalog.go's global `Tables` catalog map, generalized
// from name-keyed tables to obj-id-keyed ones (the redo stream only ever
// carries numeric object ids, never names).
type Dictionary interface {
	Table(obj uint32) (*TableMeta, bool)
	LobByDataObj(dataObj uint32) (*LobMeta, bool)
	CharacterSet(id uint16) (*CharsetDecoder, bool)
}

// StaticDictionary is an in-memory reference Dictionary, populated ahead
// of time (e.g. from a schema dump) rather than reacting to 24.1 DDL
// vectors live — the reference implementation spec.md's Non-goals call
// for ("no live dictionary resolution", schema is supplied out of band).
type StaticDictionary struct {
	mu       sync.RWMutex
	tables   map[uint32]*TableMeta
	lobs     map[uint32]*LobMeta
	charsets map[uint16]*CharsetDecoder
}

func NewStaticDictionary() *StaticDictionary {
	return &StaticDictionary{
		tables:   make(map[uint32]*TableMeta),
		lobs:     make(map[uint32]*LobMeta),
		charsets: make(map[uint16]*CharsetDecoder),
	}
}

func (d *StaticDictionary) AddTable(t *TableMeta) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[t.Obj] = t
}

func (d *StaticDictionary) AddLob(dataObj uint32, lm *LobMeta) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lobs[dataObj] = lm
}

func (d *StaticDictionary) Table(obj uint32) (*TableMeta, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tables[obj]
	return t, ok
}

func (d *StaticDictionary) LobByDataObj(dataObj uint32) (*LobMeta, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.lobs[dataObj]
	return l, ok
}

func (d *StaticDictionary) CharacterSet(id uint16) (*CharsetDecoder, bool) {
	d.mu.RLock()
	if dec, ok := d.charsets[id]; ok {
		d.mu.RUnlock()
		return dec, true
	}
	d.mu.RUnlock()
	dec, ok := NewCharsetDecoder(id)
	if !ok {
		return nil, false
	}
	d.mu.Lock()
	d.charsets[id] = dec
	d.mu.Unlock()
	return dec, true
}

// schemaFile is the on-disk JSON shape LoadStaticDictionary reads, the
// same flat "one JSON document describes the whole catalog" layout the
// checkpointstore package's FileStore uses for its own blob.
type schemaFile struct {
	Tables []schemaTable `json:"tables"`
}

type schemaTable struct {
	Schema     string             `json:"schema"`
	Name       string             `json:"name"`
	Obj        uint32             `json:"obj"`
	DataObj    uint32             `json:"data_obj"`
	SuppLogAll bool               `json:"supp_log_all"`
	Columns    []schemaColumn     `json:"columns"`
	Lob        *schemaLobOverride `json:"lob,omitempty"`
}

type schemaColumn struct {
	Name       string `json:"name"`
	ColNum     uint16 `json:"col_num"`
	CharsetID  uint16 `json:"charset_id"`
	IsLob      bool   `json:"is_lob"`
	LobStorage uint8  `json:"lob_storage"`
}

// schemaLobOverride lets the schema file register the LOB segment's own
// data-object id, distinct from the table's data_obj, the way a LOB
// column's out-of-line segment really is its own object in the catalog.
type schemaLobOverride struct {
	DataObj uint32 `json:"data_obj"`
	ColNum  uint16 `json:"col_num"`
	Storage uint8  `json:"storage"`
}

// LoadStaticDictionary reads a JSON schema dump (obj-id-keyed table/column
// metadata, exported ahead of time from the source database's catalog —
// spec.md's Non-goals rule out live dictionary resolution) and returns a
// StaticDictionary populated from it.
func LoadStaticDictionary(path string) (*StaticDictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dictionary: %w", err)
	}
	var sf schemaFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("dictionary: parsing %q: %w", path, err)
	}
	d := NewStaticDictionary()
	for _, t := range sf.Tables {
		meta := &TableMeta{
			Schema:     t.Schema,
			Name:       t.Name,
			Obj:        t.Obj,
			DataObj:    t.DataObj,
			SuppLogAll: t.SuppLogAll,
		}
		for _, c := range t.Columns {
			meta.Columns = append(meta.Columns, ColumnMeta{
				Name:       c.Name,
				ColNum:     c.ColNum,
				CharsetID:  c.CharsetID,
				IsLob:      c.IsLob,
				LobStorage: LobStorageKind(c.LobStorage),
			})
		}
		d.AddTable(meta)
		if t.Lob != nil {
			d.AddLob(t.Lob.DataObj, &LobMeta{
				Table:   meta,
				ColNum:  t.Lob.ColNum,
				Storage: LobStorageKind(t.Lob.Storage),
			})
		}
	}
	return d, nil
}
