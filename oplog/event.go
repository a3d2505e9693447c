// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Event models a single change notification flowing from a slurper to the
// indexer through the event queue. Its Payload is a tagged variant, not a
// free-form map, following the same generalized-Event shape the teacher
// uses for db.Event[K,E] in db/event.go.

package oplog

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// operation kinds carried on the queue; distinct from the raw oplog op
// letters so that the slurper can synthesize events (e.g. bootstrap
// inserts) that never had a literal oplog entry
type Op string

const (
	OpInsert  Op = "insert"
	OpUpdate  Op = "update"
	OpDelete  Op = "delete"
	OpCommand Op = "command"
)

// EventIdentity carries the addressing information common to every event
type EventIdentity struct {
	ID        interface{}
	Namespace string // "db.collection"
	Op        Op
	Timestamp bson.Timestamp
}

// EventPayload is a sealed sum type: Document | Attachment | Command
type EventPayload interface {
	isEventPayload()
}

// Document is the full body of an inserted/updated/deleted document
type Document struct {
	Body bson.Raw
}

func (Document) isEventPayload() {}

// Attachment is a GridFS file, content loaded and ready for envelope
// serialization by the indexer
type Attachment struct {
	Content     []byte
	Filename    string
	ContentType string
	MD5         string
	Length      int64
	ChunkSize   int64
}

func (Attachment) isEventPayload() {}

// Command carries a command payload, consulted only to detect
// "drop <collection>"
type Command struct {
	Raw bson.Raw
}

func (Command) isEventPayload() {}

// Event is the unit of work handed off through the queue
type Event struct {
	ID      EventIdentity
	Payload EventPayload
}

// DropCollection returns the dropped collection name and true if this
// event is a drop-collection command
func (e *Event) DropCollection() (string, bool) {
	cmd, ok := e.Payload.(Command)
	if !ok {
		return "", false
	}
	var body struct {
		Drop string `bson:"drop"`
	}
	if err := bson.Unmarshal(cmd.Raw, &body); err != nil || body.Drop == "" {
		return "", false
	}
	return body.Drop, true
}
