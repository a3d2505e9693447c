// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package oplog

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// BuildFilter assembles the server-side oplog cursor filter described by
// the slurper's filter-expression rule: namespace membership (the target
// collection, its GridFS files sibling if applicable, and the database's
// $cmd namespace to observe drops), conjoined with the user filter (only
// applied to insert/update; deletes always pass) and a resume-timestamp
// lower bound.
func BuildFilter(database, collection string, isGridFS bool, userFilter bson.M, resumeTs bson.Timestamp) bson.M {
	namespaces := bson.A{database + "." + collection, database + ".$cmd"}
	if isGridFS {
		namespaces = append(namespaces, database+"."+collection+".files")
	}

	opClause := bson.M{"op": "d"}
	if len(userFilter) > 0 {
		inClause := bson.M{"op": bson.M{"$in": bson.A{"i", "u"}}}
		merged := bson.M{}
		for k, v := range inClause {
			merged[k] = v
		}
		for k, v := range userFilter {
			merged[k] = v
		}
		opClause = bson.M{"$or": bson.A{opClause, merged}}
	} else {
		opClause = bson.M{"$or": bson.A{
			opClause,
			bson.M{"op": bson.M{"$in": bson.A{"i", "u", "c"}}},
		}}
	}

	return bson.M{
		"$and": bson.A{
			bson.M{"ns": bson.M{"$in": namespaces}},
			opClause,
			bson.M{"ts": bson.M{"$gt": resumeTs}},
		},
	}
}
