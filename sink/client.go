// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Grounded on the go-elasticsearch/v8 + esutil.BulkIndexer stack observed
// in the apm-server and high-scale-search example manifests; this
// repository has no teacher file using it directly, so the wiring below
// follows the client's documented usage pattern.

package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/go-core-stack/mongoriver/errors"
)

// Config describes how to reach the target Elasticsearch cluster
type Config struct {
	Addresses []string
	Username  string
	Password  string
}

type esClient struct {
	es *elasticsearch.Client
}

// NewClient builds a Client against the configured Elasticsearch cluster
func NewClient(conf *Config) (Client, error) {
	cfg := elasticsearch.Config{
		Addresses: conf.Addresses,
		Username:  conf.Username,
		Password:  conf.Password,
	}
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &esClient{es: es}, nil
}

// classify maps a non-2xx esapi.Response into the shared error taxonomy;
// cluster-not-ready and already-exists are distinguished because the
// mapping bootstrap and startup paths treat them very differently
func classify(res *esapi.Response, action string) error {
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	text := string(body)

	if res.StatusCode == 503 || strings.Contains(text, "cluster_block_exception") {
		return errors.Wrapf(errors.ClusterNotReady, "%s: cluster not ready: %s", action, text)
	}
	if strings.Contains(text, "resource_already_exists_exception") {
		return errors.Wrapf(errors.AlreadyExists, "%s: %s", action, text)
	}
	if res.StatusCode == 401 || res.StatusCode == 403 {
		return errors.Wrapf(errors.AuthFailure, "%s: %s", action, text)
	}
	if res.StatusCode == 404 {
		return errors.Wrapf(errors.NotFound, "%s: %s", action, text)
	}
	return errors.Wrapf(errors.Unknown, "%s: status=%d body=%s", action, res.StatusCode, text)
}

func (c *esClient) CreateIndex(ctx context.Context, index string) error {
	res, err := c.es.Indices.Create(index, c.es.Indices.Create.WithContext(ctx))
	if err != nil {
		return err
	}
	if res.IsError() {
		if err := classify(res, "create index"); !errors.IsAlreadyExists(err) {
			return err
		}
		return nil
	}
	res.Body.Close()
	return nil
}

func (c *esClient) DeleteIndex(ctx context.Context, index string) error {
	res, err := c.es.Indices.Delete([]string{index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	if res.IsError() {
		if err := classify(res, "delete index"); !errors.IsNotFound(err) {
			return err
		}
		return nil
	}
	res.Body.Close()
	return nil
}

func (c *esClient) Refresh(ctx context.Context, index string) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(index),
	)
	if err != nil {
		return err
	}
	if res.IsError() {
		return classify(res, "refresh index")
	}
	res.Body.Close()
	return nil
}

// PutMapping installs mapping as the index-level properties map; since
// Elasticsearch 8 no longer supports multiple mapping types per index,
// typeName is not sent to the server and field names are left as given.
// typeName only labels the error returned on failure.
func (c *esClient) PutMapping(ctx context.Context, index, typeName string, mapping map[string]interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"properties": mapping})
	if err != nil {
		return err
	}
	res, err := c.es.Indices.PutMapping(
		[]string{index},
		bytes.NewReader(body),
		c.es.Indices.PutMapping.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	if res.IsError() {
		return classify(res, "put mapping "+typeName)
	}
	res.Body.Close()
	return nil
}

func (c *esClient) DeleteMapping(ctx context.Context, index, typeName string) error {
	// Elasticsearch has no delete-mapping-by-type API post v7; the
	// drop-collection reinstall path achieves the same effect by
	// recreating the index's mapping from a captured snapshot, so this
	// is a deliberate no-op retained only to satisfy the documented
	// contract shape.
	return nil
}

func (c *esClient) GetMapping(ctx context.Context, index, typeName string) (map[string]interface{}, error) {
	res, err := c.es.Indices.GetMapping(
		c.es.Indices.GetMapping.WithContext(ctx),
		c.es.Indices.GetMapping.WithIndex(index),
	)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, classify(res, "get mapping "+typeName)
	}
	defer res.Body.Close()

	var decoded map[string]struct {
		Mappings struct {
			Properties map[string]interface{} `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	entry, ok := decoded[index]
	if !ok {
		return map[string]interface{}{}, nil
	}
	return entry.Mappings.Properties, nil
}

type checkpointDoc struct {
	LastTs struct {
		T uint32 `json:"t"`
		I uint32 `json:"i"`
	} `json:"_last_ts"`
}

func checkpointID(riverName, namespace string) string {
	return riverName + ":" + namespace
}

func (c *esClient) GetCheckpoint(ctx context.Context, riverIndex, riverName, namespace string) (*Timestamp, error) {
	res, err := c.es.Get(riverIndex, checkpointID(riverName, namespace), c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if res.StatusCode == 404 {
		res.Body.Close()
		return nil, nil
	}
	if res.IsError() {
		return nil, classify(res, "get checkpoint")
	}
	defer res.Body.Close()

	var wrapper struct {
		Source checkpointDoc `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&wrapper); err != nil {
		return nil, err
	}
	return &Timestamp{T: wrapper.Source.LastTs.T, I: wrapper.Source.LastTs.I}, nil
}

func (c *esClient) SetCheckpoint(ctx context.Context, riverIndex, riverName, namespace string, ts Timestamp) error {
	body, err := json.Marshal(checkpointDoc{LastTs: struct {
		T uint32 `json:"t"`
		I uint32 `json:"i"`
	}{T: ts.T, I: ts.I}})
	if err != nil {
		return err
	}
	res, err := c.es.Index(
		riverIndex,
		bytes.NewReader(body),
		c.es.Index.WithDocumentID(checkpointID(riverName, namespace)),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	if res.IsError() {
		return classify(res, "set checkpoint")
	}
	res.Body.Close()
	return nil
}

// CheckpointAction builds the bulk index action for inclusion in the
// same bulk as the data it protects, per the indexer's checkpoint step
func (c *esClient) CheckpointAction(riverIndex, riverName, namespace string, ts Timestamp) (Action, error) {
	body, err := json.Marshal(checkpointDoc{LastTs: struct {
		T uint32 `json:"t"`
		I uint32 `json:"i"`
	}{T: ts.T, I: ts.I}})
	if err != nil {
		return Action{}, err
	}
	return Action{
		Index: riverIndex,
		ID:    checkpointID(riverName, namespace),
		Op:    ActionIndex,
		Body:  body,
	}, nil
}

type statusDoc struct {
	Enabled bool `json:"enabled"`
}

func statusID(riverName string) string {
	return riverName + ":_status"
}

func (c *esClient) GetEnabled(ctx context.Context, riverIndex, riverName string) (bool, error) {
	res, err := c.es.Get(riverIndex, statusID(riverName), c.es.Get.WithContext(ctx))
	if err != nil {
		return false, err
	}
	if res.StatusCode == 404 {
		res.Body.Close()
		return false, nil
	}
	if res.IsError() {
		return false, classify(res, "get enabled flag")
	}
	defer res.Body.Close()

	var wrapper struct {
		Source statusDoc `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&wrapper); err != nil {
		return false, err
	}
	return wrapper.Source.Enabled, nil
}

func (c *esClient) SetEnabled(ctx context.Context, riverIndex, riverName string, enabled bool) error {
	body, err := json.Marshal(statusDoc{Enabled: enabled})
	if err != nil {
		return err
	}
	res, err := c.es.Index(
		riverIndex,
		bytes.NewReader(body),
		c.es.Index.WithDocumentID(statusID(riverName)),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	if res.IsError() {
		return classify(res, "set enabled flag")
	}
	res.Body.Close()
	return nil
}

func (c *esClient) NewBulk() BulkIndexer {
	return newBulkIndexer(c.es)
}
