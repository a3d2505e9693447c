// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package source

// operation type strings as they appear in the oplog's "op" field
const (
	OpInsert  = "i"
	OpUpdate  = "u"
	OpDelete  = "d"
	OpCommand = "c"
	OpNoop    = "n"
)

// process values reported by serverStatus, used to detect a sharded
// cluster topology versus a plain replica set
const (
	ProcessMongos = "mongos"
	ProcessMongod = "mongod"
)

const (
	oplogDatabase   = "local"
	oplogCollection = "oplog.rs"

	configDatabase       = "config"
	configShardsCollName = "shards"
)
