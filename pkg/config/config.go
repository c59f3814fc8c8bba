package config

import (
	"fmt"
	"net/url"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
)

// Environment variable names for server configuration
const (
	EnvMerklePort           = "MERKLE_PORT"
	EnvMerkleHashAlgorithm  = "MERKLE_HASH_ALGORITHM"
	EnvMerklePersistence    = "MERKLE_PERSISTENCE_TYPE"
	EnvMerkleDataDir        = "MERKLE_DATA_DIR"
	EnvMerkleRedisAddress   = "MERKLE_REDIS_ADDRESS"
	EnvMerkleRedisPassword  = "MERKLE_REDIS_PASSWORD"
	EnvMerkleRedisDB        = "MERKLE_REDIS_DB"
	EnvMerkleRedisKeyPrefix = "MERKLE_REDIS_KEY_PREFIX"
	EnvMerkleRateLimit      = "MERKLE_RATE_LIMIT"
	EnvMerkleRateBurst      = "MERKLE_RATE_BURST"
	EnvMerkleMaxUploadBytes = "MERKLE_MAX_UPLOAD_BYTES"
	EnvMerkleVerbose        = "MERKLE_VERBOSE"
)

// Environment variable names for client configuration
const (
	EnvMerkleServerURL       = "MERKLE_SERVER_URL"
	EnvMerkleClientStateFile = "MERKLE_CLIENT_STATE_FILE"
)

// Defaults
const (
	DefaultPort            = 8000
	DefaultDataDir         = "./server_storage"
	DefaultRedisAddress    = "localhost:6379"
	DefaultRateLimit       = 50.0
	DefaultRateBurst       = 100
	DefaultMaxUploadBytes  = 64 << 20
	DefaultServerURL       = "http://localhost:8000"
	DefaultClientStateFile = "./client_storage/state.json"
)

type PersistenceType string

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

func (p PersistenceType) String() string {
	return string(p)
}

// GetSupportedPersistenceTypes returns all supported persistence backends
func GetSupportedPersistenceTypes() []PersistenceType {
	return []PersistenceType{PersistenceTypeMemory, PersistenceTypeBadger, PersistenceTypeRedis}
}

// GetSupportedPersistenceTypesString returns supported backends for CLI help
func GetSupportedPersistenceTypesString() string {
	types := GetSupportedPersistenceTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}

// GetSupportedHashAlgorithmsString returns supported hashers for CLI help
func GetSupportedHashAlgorithmsString() string {
	return strings.Join(merkle.SupportedHashAlgorithms(), ", ")
}

// RedisConfig is the redis section of ServerConfig
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"-"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// ServerConfig represents the complete configuration for a merkle server
type ServerConfig struct {
	Port          int    `json:"port"`
	HashAlgorithm string `json:"hash_algorithm"`

	// Storage
	PersistenceType PersistenceType `json:"persistence_type"`
	DataDir         string          `json:"data_dir"`
	Redis           RedisConfig     `json:"redis"`

	// Request limits; RateLimit <= 0 disables rate limiting
	RateLimit      float64 `json:"rate_limit"`
	RateBurst      int     `json:"rate_burst"`
	MaxUploadBytes int64   `json:"max_upload_bytes"`

	Debug bool `json:"debug"`
}

// Validate accumulates every problem with the server configuration
func (c *ServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "must be between 1-65535"))
	}

	allErrors = append(allErrors, validateHashAlgorithm(field.NewPath("hashAlgorithm"), c.HashAlgorithm)...)

	switch c.PersistenceType {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if c.DataDir == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("dataDir"), "dataDir is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		redisPath := field.NewPath("redis")
		if c.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(redisPath.Child("address"), "address is required for redis persistence"))
		}
		if c.Redis.DB < 0 || c.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(redisPath.Child("db"), c.Redis.DB, "must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("persistenceType"), c.PersistenceType,
			[]string{PersistenceTypeMemory.String(), PersistenceTypeBadger.String(), PersistenceTypeRedis.String()}))
	}

	if c.RateLimit > 0 && c.RateBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateBurst"), c.RateBurst, "must be at least 1 when rate limiting is enabled"))
	}
	if c.MaxUploadBytes < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("maxUploadBytes"), c.MaxUploadBytes, "must be positive"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// ClientConfig represents the configuration shared by client commands
type ClientConfig struct {
	ServerURL     string `json:"server_url"`
	StateFile     string `json:"state_file"`
	HashAlgorithm string `json:"hash_algorithm"`
	Debug         bool   `json:"debug"`
}

// Validate accumulates every problem with the client configuration
func (c *ClientConfig) Validate() error {
	var allErrors field.ErrorList

	serverPath := field.NewPath("serverURL")
	if c.ServerURL == "" {
		allErrors = append(allErrors, field.Required(serverPath, "serverURL is required"))
	} else if u, err := url.Parse(c.ServerURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		allErrors = append(allErrors, field.Invalid(serverPath, c.ServerURL, "must be an absolute http(s) URL"))
	}

	if c.StateFile == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("stateFile"), "stateFile is required"))
	}

	allErrors = append(allErrors, validateHashAlgorithm(field.NewPath("hashAlgorithm"), c.HashAlgorithm)...)

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func validateHashAlgorithm(path *field.Path, name string) field.ErrorList {
	if name == "" {
		return field.ErrorList{field.Required(path, "hashAlgorithm is required")}
	}
	if _, err := merkle.NewHasher(name); err != nil {
		return field.ErrorList{field.NotSupported(path, name, merkle.SupportedHashAlgorithms())}
	}
	return nil
}

// Address returns the listen address for the configured port
func (c *ServerConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}
