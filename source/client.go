// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Initial reference and motivation taken from the teacher's db/mongo.go,
// migrated onto the v2 mongo driver and extended with the tailable-cursor,
// GridFS and topology-discovery surface this domain requires.

package source

import (
	"context"
	stderrors "errors"
	"net"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	"github.com/go-core-stack/mongoriver/errors"
)

type mongoClient struct {
	client *mongo.Client
	conf   *MongoConfig
}

// NewMongoClient connects to the MongoDB deployment described by conf
func NewMongoClient(ctx context.Context, conf *MongoConfig) (Client, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}

	uri := "mongodb://" + net.JoinHostPort(conf.Host, conf.Port)
	if conf.ReplicaSet != "" {
		uri += "/?replicaSet=" + conf.ReplicaSet
	}

	clientOptions := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(conf.ConnectTimeout).
		SetSocketTimeout(conf.SocketTimeout)
	// kept from the teacher's mongo client construction
	clientOptions.Monitor = otelmongo.NewMonitor()

	if conf.Username != "" {
		clientOptions.SetAuth(options.Credential{
			AuthMechanism: "SCRAM-SHA-256",
			AuthSource:    getAuthSourceIdentifier(),
			Username:      conf.Username,
			Password:      conf.Password,
		})
	}
	if conf.TLSConfig != nil {
		clientOptions.SetTLSConfig(conf.TLSConfig)
	}

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	return &mongoClient{client: client, conf: conf}, nil
}

func (c *mongoClient) Database(name string) Database {
	return &mongoDatabase{db: c.client.Database(name)}
}

func (c *mongoClient) ServerStatus(ctx context.Context) (*ServerInfo, error) {
	admin := c.client.Database("admin")
	var res bson.M
	if err := admin.RunCommand(ctx, bson.D{{Key: "serverStatus", Value: 1}}).Decode(&res); err != nil {
		return nil, classifyAuthError(err)
	}
	process, _ := res["process"].(string)
	return &ServerInfo{Process: process}, nil
}

// Authenticate re-authenticates against authSource using a local
// credential; used as the fallback path when the configured admin
// credential is rejected per the error-recovery table
func (c *mongoClient) Authenticate(ctx context.Context, user, password, authSource string) error {
	uri := "mongodb://" + net.JoinHostPort(c.conf.Host, c.conf.Port)
	clientOptions := options.Client().ApplyURI(uri).SetAuth(options.Credential{
		AuthMechanism: "SCRAM-SHA-256",
		AuthSource:    authSource,
		Username:      user,
		Password:      password,
	})
	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return errors.Wrapf(errors.AuthFailure, "local credential authentication failed: %s", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return errors.Wrapf(errors.AuthFailure, "local credential authentication failed: %s", err)
	}
	old := c.client
	c.client = client
	return old.Disconnect(ctx)
}

func (c *mongoClient) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

func (c *mongoClient) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// mongo's own "Unauthorized"/"AuthenticationFailed" command error codes,
// used to recognize an admin-auth rejection distinctly from any other
// command failure
const (
	mongoErrCodeUnauthorized         = 13
	mongoErrCodeAuthenticationFailed = 18
)

// classifyAuthError tags an admin command failure caused by rejected
// credentials with errors.AuthFailure, so callers can distinguish the
// "fall back to a local credential" case from any other driver error
func classifyAuthError(err error) error {
	var cmdErr mongo.CommandError
	if stderrors.As(err, &cmdErr) {
		if cmdErr.Code == mongoErrCodeUnauthorized || cmdErr.Code == mongoErrCodeAuthenticationFailed {
			return errors.Wrapf(errors.AuthFailure, "admin command rejected: %s", err)
		}
	}
	return err
}
