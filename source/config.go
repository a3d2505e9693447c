// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package source

import (
	"crypto/tls"
	"strconv"
	"time"

	"github.com/go-core-stack/mongoriver/errors"
)

// default timeouts, kept aligned with the concurrency model: connect 15s,
// socket 60s, keepalive on
const (
	defaultConnectTimeout = 15 * time.Second
	defaultSocketTimeout  = 60 * time.Second
)

// MongoConfig describes how to reach the source MongoDB deployment. It is
// constructed directly by the embedding program (no config-file format).
type MongoConfig struct {
	Host     string
	Port     string
	Username string
	Password string

	// ReplicaSet, when set, is appended to the connection URI so the
	// driver performs replica-set discovery instead of a direct
	// single-host connection
	ReplicaSet string

	ConnectTimeout time.Duration
	SocketTimeout  time.Duration

	// TLSConfig, when non-nil, is applied as-is to the driver's client
	// options; this package never constructs its own CA machinery
	TLSConfig *tls.Config
}

func (c *MongoConfig) validate() error {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == "" || c.Port == "0" {
		c.Port = "27017"
	} else if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.Wrap(errors.InvalidArgument, "invalid database port")
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.SocketTimeout <= 0 {
		c.SocketTimeout = defaultSocketTimeout
	}
	return nil
}
