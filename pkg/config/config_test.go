package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microbecode/file-merkle-proofs/pkg/merkle"
)

func validServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            DefaultPort,
		HashAlgorithm:   merkle.DefaultHashAlgorithm,
		PersistenceType: PersistenceTypeMemory,
		DataDir:         DefaultDataDir,
		Redis:           RedisConfig{Address: DefaultRedisAddress},
		RateLimit:       DefaultRateLimit,
		RateBurst:       DefaultRateBurst,
		MaxUploadBytes:  DefaultMaxUploadBytes,
	}
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ServerConfig)
		wantErr string
	}{
		{name: "valid memory", mutate: func(c *ServerConfig) {}},
		{name: "valid badger", mutate: func(c *ServerConfig) { c.PersistenceType = PersistenceTypeBadger }},
		{name: "valid redis", mutate: func(c *ServerConfig) { c.PersistenceType = PersistenceTypeRedis }},
		{name: "rate limit disabled", mutate: func(c *ServerConfig) { c.RateLimit = 0; c.RateBurst = 0 }},
		{name: "port zero", mutate: func(c *ServerConfig) { c.Port = 0 }, wantErr: "port"},
		{name: "port too high", mutate: func(c *ServerConfig) { c.Port = 70000 }, wantErr: "port"},
		{name: "unknown hash", mutate: func(c *ServerConfig) { c.HashAlgorithm = "md5" }, wantErr: "hashAlgorithm"},
		{name: "empty hash", mutate: func(c *ServerConfig) { c.HashAlgorithm = "" }, wantErr: "hashAlgorithm"},
		{name: "unknown persistence", mutate: func(c *ServerConfig) { c.PersistenceType = "s3" }, wantErr: "persistenceType"},
		{name: "badger without dir", mutate: func(c *ServerConfig) {
			c.PersistenceType = PersistenceTypeBadger
			c.DataDir = ""
		}, wantErr: "dataDir"},
		{name: "redis without address", mutate: func(c *ServerConfig) {
			c.PersistenceType = PersistenceTypeRedis
			c.Redis.Address = ""
		}, wantErr: "redis.address"},
		{name: "redis bad db", mutate: func(c *ServerConfig) {
			c.PersistenceType = PersistenceTypeRedis
			c.Redis.DB = 16
		}, wantErr: "redis.db"},
		{name: "burst without limit", mutate: func(c *ServerConfig) { c.RateBurst = 0 }, wantErr: "rateBurst"},
		{name: "zero upload limit", mutate: func(c *ServerConfig) { c.MaxUploadBytes = 0 }, wantErr: "maxUploadBytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validServerConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServerConfig_ValidateAccumulates(t *testing.T) {
	cfg := validServerConfig()
	cfg.Port = -1
	cfg.HashAlgorithm = "crc32"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
	assert.Contains(t, err.Error(), "hashAlgorithm")
}

func TestServerConfig_Address(t *testing.T) {
	cfg := validServerConfig()
	assert.Equal(t, ":8000", cfg.Address())
}

func TestClientConfig_Validate(t *testing.T) {
	valid := func() *ClientConfig {
		return &ClientConfig{
			ServerURL:     DefaultServerURL,
			StateFile:     DefaultClientStateFile,
			HashAlgorithm: merkle.HashSHA256,
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.ServerURL = "localhost:8000"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serverURL")

	cfg = valid()
	cfg.ServerURL = ""
	cfg.StateFile = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serverURL")
	assert.Contains(t, err.Error(), "stateFile")

	cfg = valid()
	cfg.HashAlgorithm = "nope"
	require.Error(t, cfg.Validate())
}

func TestGetSupportedStrings(t *testing.T) {
	assert.Equal(t, "memory, badger, redis", GetSupportedPersistenceTypesString())
	assert.Contains(t, GetSupportedHashAlgorithmsString(), merkle.HashKeccak256)
}
