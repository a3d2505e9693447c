// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// riversyncd is the thin process entrypoint: parse flags into a
// river.Definition and the source/sink connection configs, wire up the
// owner/lock table, make sure the target index exists, and hand off to
// a supervisor until an OS signal asks it to stop. Its flag-driven,
// signal-shutdown shape is grounded on experimental/replicate_mongo.go's
// main, generalized from a one-shot reseed to a long-running service.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-core-stack/mongoriver/checkpoint"
	"github.com/go-core-stack/mongoriver/mapping"
	"github.com/go-core-stack/mongoriver/river"
	"github.com/go-core-stack/mongoriver/sink"
	"github.com/go-core-stack/mongoriver/source"
	"github.com/go-core-stack/mongoriver/supervisor"
	"github.com/go-core-stack/mongoriver/sync"
	"github.com/go-core-stack/mongoriver/transform"
	"github.com/go-core-stack/mongoriver/values"
)

func main() {
	defaultUser, defaultPass := values.GetMongoConfigDBCredentials()

	var (
		// source MongoDB connection
		srcHost       = flag.String("src-host", "localhost", "source MongoDB host")
		srcPort       = flag.String("src-port", "27017", "source MongoDB port")
		srcReplicaSet = flag.String("src-replicaset", "", "source MongoDB replica set name, if any")
		srcUsername   = flag.String("src-username", defaultUser, "source MongoDB username")
		srcPassword   = flag.String("src-password", defaultPass, "source MongoDB password")

		// target Elasticsearch connection
		dstAddr     = flag.String("dst-addr", "http://localhost:9200", "target Elasticsearch address")
		dstUsername = flag.String("dst-username", "", "target Elasticsearch username")
		dstPassword = flag.String("dst-password", "", "target Elasticsearch password")

		// river definition
		riverName        = flag.String("river-name", "", "unique name for this river")
		sourceDatabase   = flag.String("source-db", "", "source database name")
		sourceCollection = flag.String("source-collection", "", "source collection name")
		targetIndex      = flag.String("target-index", "", "target Elasticsearch index")
		targetType       = flag.String("target-type", "_doc", "target document type namespace")
		throttleSize     = flag.Int("throttle-size", 1000, "max in-flight queued events, -1 for unbounded")
		bulkSize         = flag.Int("bulk-size", 500, "max events per bulk submission")
		bulkTimeout      = flag.Duration("bulk-timeout", 2*time.Second, "max time to wait for a batch to fill")
		bulkRate         = flag.Int64("bulk-rate", 0, "max bulk actions/sec submitted to the sink, 0 to disable pacing")
		isGridFS         = flag.Bool("gridfs", false, "treat the source collection as GridFS-backed")
		dropPolicy       = flag.Bool("drop-collection-policy", false, "reinstall the target mapping when the source collection is dropped")
		includeCollField = flag.String("include-collection-field", "", "field name to stamp with the source collection name, empty to disable")

		// control-plane bookkeeping
		riversIndex = flag.String("rivers-index", "rivers", "Elasticsearch index hosting checkpoint/enable-flag documents")
		ownerName   = flag.String("owner-name", "riversyncd", "identity recorded in the owner table for this process")
	)
	flag.Parse()

	if *riverName == "" || *sourceDatabase == "" || *sourceCollection == "" || *targetIndex == "" {
		log.Fatal("river-name, source-db, source-collection and target-index are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srcClient, err := source.NewMongoClient(ctx, &source.MongoConfig{
		Host:       *srcHost,
		Port:       *srcPort,
		ReplicaSet: *srcReplicaSet,
		Username:   *srcUsername,
		Password:   *srcPassword,
	})
	if err != nil {
		log.Fatalf("failed to connect to source MongoDB: %s", err)
	}
	defer srcClient.Close(context.Background())

	dstClient, err := sink.NewClient(&sink.Config{
		Addresses: []string{*dstAddr},
		Username:  *dstUsername,
		Password:  *dstPassword,
	})
	if err != nil {
		log.Fatalf("failed to build Elasticsearch client: %s", err)
	}

	opts := []river.Option{
		river.WithDropCollectionPolicy(*dropPolicy),
		river.WithGridFS(*isGridFS),
	}
	if *includeCollField != "" {
		opts = append(opts, river.WithIncludeCollectionField(*includeCollField))
	}
	if *srcUsername != "" {
		// kept on the Definition so the slurper can detect an admin-auth
		// rejection mid-run and fall back to a local credential per
		// §4.3.5, independent of the credential already applied to
		// srcClient above
		opts = append(opts, river.WithCredentials(*srcUsername, *srcPassword))
	}

	def, err := river.New(*riverName, *sourceDatabase, *sourceCollection, *targetIndex, *targetType, *throttleSize, *bulkSize, *bulkTimeout, opts...)
	if err != nil {
		log.Fatalf("failed to build river definition: %s", err)
	}

	if err := mapping.EnsureTargetReady(ctx, dstClient, *targetIndex, *targetType, *isGridFS); err != nil {
		log.Fatalf("failed to prepare target index %s: %s", *targetIndex, err)
	}

	lockStore := srcClient.Database("admin")
	if err := sync.InitializeOwner(ctx, lockStore, *ownerName); err != nil {
		log.Fatalf("failed to initialize owner table: %s", err)
	}
	log.Printf("riversyncd: registered as owner %s", sync.SelfOwnerName())

	checkpoints := checkpoint.New(dstClient, *riversIndex, def.Name())

	sup := supervisor.New(def, srcClient, dstClient, checkpoints, transform.NoOp{}, lockStore, *riversIndex, *bulkRate)

	log.Printf("riversyncd: river %s started, replicating %s.%s -> %s/%s", def.Name(), *sourceDatabase, *sourceCollection, *targetIndex, *targetType)
	sup.Run(ctx)
	log.Printf("riversyncd: river %s stopped", def.Name())
}
