package graph

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/scrypt"
	"gopkg.in/yaml.v3"

	"github.com/dyedgreen/cqlite-sub000/pkg/store"
)

// scryptSalt is fixed rather than per-database random: the key derived
// from it is used only as a badger encryption key, never compared or
// stored, so the usual "unique salt per secret" rationale for password
// hashing doesn't apply here - the passphrase itself is the secret the
// operator must still protect.
var scryptSalt = []byte("cqlite-at-rest-v1")

// Options configures a Graph.
type Options struct {
	// DataDir is where the underlying store keeps its files. Ignored when
	// InMemory is true.
	DataDir string

	// InMemory runs the store with no on-disk footprint. Useful for tests
	// and short-lived embeds.
	InMemory bool

	// SyncWrites forces an fsync after every committed write transaction.
	SyncWrites bool

	// EncryptAtRestPassphrase, when set, turns on at-rest encryption: the
	// passphrase is stretched into an AES-256 key with scrypt before
	// being handed to the store, so the same passphrase always derives
	// the same key without ever being persisted itself.
	EncryptAtRestPassphrase string

	// Logger receives the underlying store's internal log lines.
	Logger badger.Logger

	// QueryCacheSize bounds how many compiled programs the Graph keeps
	// around, keyed by query text and parameter names. Zero uses a small
	// default; a negative value disables the cache entirely.
	QueryCacheSize int

	// QueryCacheTTL bounds how long a cached program is trusted before
	// being recompiled. Zero means no expiration (size-based eviction
	// only).
	QueryCacheTTL time.Duration

	// TracerProvider and MeterProvider supply the OpenTelemetry tracer
	// and meter used to instrument query execution. Both default to the
	// global providers registered with the otel package, so an embedder
	// that never calls otel.SetTracerProvider/SetMeterProvider gets a
	// no-op implementation for free.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// OptionsFromEnv builds Options from the environment, for embedders that
// prefer configuring a Graph the way a twelve-factor service would:
//
//	CQLITE_DATA_DIR              - data directory (default: "./cqlite-data")
//	CQLITE_IN_MEMORY              - "true" to run with no on-disk footprint
//	CQLITE_SYNC_WRITES             - "true" to fsync every commit
//	CQLITE_ENCRYPT_PASSPHRASE      - enables at-rest encryption when set
//	CQLITE_QUERY_CACHE_SIZE        - integer, compiled-program cache capacity
func OptionsFromEnv() Options {
	opts := Options{DataDir: "./cqlite-data"}
	if v := os.Getenv("CQLITE_DATA_DIR"); v != "" {
		opts.DataDir = v
	}
	if v, err := strconv.ParseBool(os.Getenv("CQLITE_IN_MEMORY")); err == nil {
		opts.InMemory = v
	}
	if v, err := strconv.ParseBool(os.Getenv("CQLITE_SYNC_WRITES")); err == nil {
		opts.SyncWrites = v
	}
	opts.EncryptAtRestPassphrase = os.Getenv("CQLITE_ENCRYPT_PASSPHRASE")
	if v, err := strconv.Atoi(os.Getenv("CQLITE_QUERY_CACHE_SIZE")); err == nil {
		opts.QueryCacheSize = v
	}
	return opts
}

// yamlOptions is the on-disk shape of a cqlite.yaml config file: the
// subset of Options that is meaningful outside of process memory (no
// Logger/TracerProvider/MeterProvider - those are Go values, not config).
type yamlOptions struct {
	DataDir                 string `yaml:"data_dir"`
	InMemory                bool   `yaml:"in_memory"`
	SyncWrites              bool   `yaml:"sync_writes"`
	EncryptAtRestPassphrase string `yaml:"encrypt_at_rest_passphrase"`
	QueryCacheSize          int    `yaml:"query_cache_size"`
}

// OptionsFromYAML reads Options from a cqlite.yaml-style config file,
// the file `cqlite init` writes out.
func OptionsFromYAML(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("graph: read config %s: %w", path, err)
	}
	var y yamlOptions
	if err := yaml.Unmarshal(data, &y); err != nil {
		return Options{}, fmt.Errorf("graph: parse config %s: %w", path, err)
	}
	return Options{
		DataDir:                 y.DataDir,
		InMemory:                y.InMemory,
		SyncWrites:              y.SyncWrites,
		EncryptAtRestPassphrase: y.EncryptAtRestPassphrase,
		QueryCacheSize:          y.QueryCacheSize,
	}, nil
}

// WriteDefaultYAML writes a commented default cqlite.yaml to path,
// rooted at dataDir - the file `cqlite init` produces.
func WriteDefaultYAML(path, dataDir string) error {
	content := fmt.Sprintf(`# cqlite configuration
data_dir: %s
in_memory: false
sync_writes: false

# Uncomment and set to enable at-rest encryption (key is derived with
# scrypt, the passphrase itself is never written to disk).
# encrypt_at_rest_passphrase: ""

query_cache_size: 1000
`, dataDir)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("graph: write config %s: %w", path, err)
	}
	return nil
}

// deriveEncryptionKey stretches a passphrase into a 32-byte AES-256 key
// via scrypt, using cost parameters suitable for an interactive open (not
// a high-value password store): N=1<<15, r=8, p=1.
func deriveEncryptionKey(passphrase string) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), scryptSalt, 1<<15, 8, 1, 32)
}

func (o Options) storeOptions() (store.Options, error) {
	so := store.Options{
		DataDir:    o.DataDir,
		InMemory:   o.InMemory,
		SyncWrites: o.SyncWrites,
		Logger:     o.Logger,
	}
	if o.EncryptAtRestPassphrase != "" {
		key, err := deriveEncryptionKey(o.EncryptAtRestPassphrase)
		if err != nil {
			return store.Options{}, err
		}
		so.EncryptionKey = key
	}
	return so, nil
}
