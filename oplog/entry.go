// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package oplog

import (
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Entry is the raw shape of a document read off local.oplog.rs
type Entry struct {
	Op          string         `bson:"op"`
	Ns          string         `bson:"ns"`
	Ts          bson.Timestamp `bson:"ts"`
	O           bson.Raw       `bson:"o"`
	O2          bson.Raw       `bson:"o2"`
	FromMigrate bool           `bson:"fromMigrate"`
}

// Database returns the database portion of Ns
func (e *Entry) Database() string {
	db, _, _ := strings.Cut(e.Ns, ".")
	return db
}

// Collection returns the collection portion of Ns, including any
// ".files"/".chunks" GridFS suffix
func (e *Entry) Collection() string {
	_, col, _ := strings.Cut(e.Ns, ".")
	return col
}

// IsChunkWrite reports whether this entry targets a GridFS chunks
// collection, which never produces its own event (the .files sentinel
// carries the logical file event)
func (e *Entry) IsChunkWrite() bool {
	return strings.HasSuffix(e.Ns, ".chunks")
}

// IsGridFSFile reports whether this entry targets a GridFS files
// collection
func (e *Entry) IsGridFSFile() bool {
	return strings.HasSuffix(e.Ns, ".files")
}

// IsCommand reports whether this entry is a command, namespace db.$cmd
func (e *Entry) IsCommand() bool {
	return e.Op == "c"
}

// DocumentID extracts the _id from o, falling back to o2 (present only on
// updates), returning false if neither carries one
func (e *Entry) DocumentID() (bson.RawValue, bool) {
	if v, err := e.O.LookupErr("_id"); err == nil {
		return v, true
	}
	if len(e.O2) > 0 {
		if v, err := e.O2.LookupErr("_id"); err == nil {
			return v, true
		}
	}
	return bson.RawValue{}, false
}
