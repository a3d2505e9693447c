// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// river.Definition is the immutable configuration snapshot a Supervisor
// is constructed from, grounded on the validated-once, constructor-only
// style of source.MongoConfig: built once via New, no setters exposed
// after creation.

package river

import (
	"os"
	"sync"
	"time"

	"github.com/go-core-stack/mongoriver/errors"
	"github.com/go-core-stack/mongoriver/utils"
)

const encryptionProvider = "river-auth"

// Environment variable providing the at-rest encryption key for river
// auth credentials; falls back to a fixed default so a dev deployment
// never fails to construct a Definition, matching values.GetMongoConfigDBCredentials's
// env-with-default posture
const (
	EncryptionKeyEnv     = "MONGORIVER_AUTH_ENCRYPTION_KEY"
	defaultEncryptionKey = "mongoriver-default-key"
)

var initEncryptorOnce sync.Once

// ensureEncryptor lazily initializes the package-wide credential
// encryptor on first use, so Definition construction does not require
// callers to perform explicit setup
func ensureEncryptor() (utils.IOEncryptor, error) {
	var initErr error
	initEncryptorOnce.Do(func() {
		key := defaultEncryptionKey
		if v, ok := os.LookupEnv(EncryptionKeyEnv); ok {
			key = v
		}
		_, err := utils.InitializeEncryptor(encryptionProvider, key)
		if err != nil && !errors.IsAlreadyExists(err) {
			initErr = err
		}
	})
	if initErr != nil {
		return nil, initErr
	}
	return utils.GetObjectEncryptor(encryptionProvider)
}

// Definition is an immutable snapshot of everything a Supervisor needs
// to run one river (one source db.collection replicated to one sink
// index/type)
type Definition struct {
	name string

	sourceDatabase   string
	sourceCollection string

	targetIndex string
	targetType  string

	throttleSize int
	bulkSize     int
	bulkTimeout  time.Duration

	filter        map[string]interface{}
	excludeFields []string

	transformScript string

	includeCollectionField string
	dropCollectionPolicy   bool

	initialTimestamp *time.Time

	isGridFS bool

	username          string
	encryptedPassword string
}

// Option configures an optional Definition field; required fields are
// positional New arguments
type Option func(*Definition, *string)

func WithFilter(filter map[string]interface{}) Option {
	return func(d *Definition, _ *string) { d.filter = filter }
}

func WithExcludeFields(fields []string) Option {
	return func(d *Definition, _ *string) { d.excludeFields = fields }
}

func WithTransformScript(script string) Option {
	return func(d *Definition, _ *string) { d.transformScript = script }
}

func WithIncludeCollectionField(field string) Option {
	return func(d *Definition, _ *string) { d.includeCollectionField = field }
}

func WithDropCollectionPolicy(enabled bool) Option {
	return func(d *Definition, _ *string) { d.dropCollectionPolicy = enabled }
}

func WithInitialTimestamp(ts time.Time) Option {
	return func(d *Definition, _ *string) { d.initialTimestamp = &ts }
}

func WithGridFS(enabled bool) Option {
	return func(d *Definition, _ *string) { d.isGridFS = enabled }
}

// WithCredentials stages a username/password pair; the password is
// encrypted at rest by New and never retained in plaintext on Definition
func WithCredentials(username, password string) Option {
	return func(d *Definition, rawPassword *string) {
		d.username = username
		*rawPassword = password
	}
}

// New constructs an immutable Definition, encrypting the supplied auth
// password at rest via utils.IOEncryptor. Returns an error if the
// required fields are empty or throttle/bulk sizing is invalid.
func New(name, sourceDatabase, sourceCollection, targetIndex, targetType string, throttleSize, bulkSize int, bulkTimeout time.Duration, opts ...Option) (*Definition, error) {
	if name == "" || sourceDatabase == "" || sourceCollection == "" || targetIndex == "" || targetType == "" {
		return nil, errors.Wrap(errors.InvalidArgument, "river name, source, and target must be set")
	}
	if throttleSize < 1 && throttleSize != -1 {
		return nil, errors.Wrap(errors.InvalidArgument, "throttleSize must be -1 (unbounded) or >= 1")
	}
	if bulkSize < 1 {
		return nil, errors.Wrap(errors.InvalidArgument, "bulkSize must be >= 1")
	}
	if bulkTimeout <= 0 {
		return nil, errors.Wrap(errors.InvalidArgument, "bulkTimeout must be positive")
	}

	d := &Definition{
		name:             name,
		sourceDatabase:   sourceDatabase,
		sourceCollection: sourceCollection,
		targetIndex:      targetIndex,
		targetType:       targetType,
		throttleSize:     throttleSize,
		bulkSize:         bulkSize,
		bulkTimeout:      bulkTimeout,
	}

	var rawPassword string
	for _, opt := range opts {
		opt(d, &rawPassword)
	}

	if d.username != "" {
		enc, err := ensureEncryptor()
		if err != nil {
			return nil, errors.Wrapf(errors.Unknown, "river auth encryptor unavailable: %s", err)
		}
		cipherText, err := enc.EncryptString(rawPassword)
		if err != nil {
			return nil, errors.Wrapf(errors.Unknown, "failed to encrypt river credentials: %s", err)
		}
		d.encryptedPassword = cipherText
	}

	return d, nil
}

func (d *Definition) Name() string                   { return d.name }
func (d *Definition) SourceDatabase() string         { return d.sourceDatabase }
func (d *Definition) SourceCollection() string       { return d.sourceCollection }
func (d *Definition) Namespace() string              { return d.sourceDatabase + "." + d.sourceCollection }
func (d *Definition) TargetIndex() string            { return d.targetIndex }
func (d *Definition) TargetType() string             { return d.targetType }
func (d *Definition) ThrottleSize() int              { return d.throttleSize }
func (d *Definition) BulkSize() int                  { return d.bulkSize }
func (d *Definition) BulkTimeout() time.Duration     { return d.bulkTimeout }
func (d *Definition) Filter() map[string]interface{} { return d.filter }
func (d *Definition) ExcludeFields() []string        { return d.excludeFields }
func (d *Definition) TransformScript() string        { return d.transformScript }
func (d *Definition) IncludeCollectionField() string { return d.includeCollectionField }
func (d *Definition) DropCollectionPolicy() bool     { return d.dropCollectionPolicy }
func (d *Definition) InitialTimestamp() *time.Time   { return d.initialTimestamp }
func (d *Definition) IsGridFS() bool                 { return d.isGridFS }
func (d *Definition) Username() string               { return d.username }

// Password decrypts and returns the stored credential; callers must not
// cache or log the result
func (d *Definition) Password() (string, error) {
	if d.username == "" {
		return "", nil
	}
	enc, err := ensureEncryptor()
	if err != nil {
		return "", errors.Wrapf(errors.Unknown, "river auth encryptor unavailable: %s", err)
	}
	return enc.DecryptString(d.encryptedPassword)
}
