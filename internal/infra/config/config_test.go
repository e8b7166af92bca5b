package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "")

	cfg, err := Load()
	req.NoError(err)
	req.Equal(StoreMemory, cfg.StoreDriver)
	req.Equal(5*time.Second, cfg.OperationTimeout)
	req.Equal(64, cfg.WSSendBuffer)
	req.EqualValues(10<<20, cfg.AttachmentMaxBytes)
	req.Empty(cfg.KafkaBrokers)
	req.Equal([]string{"127.0.0.1"}, cfg.ScyllaHosts)
}

func TestLoadOverrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "Mongo")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("OPERATION_TIMEOUT", "2s")
	t.Setenv("S3_ENDPOINT", "http://minio:9000")
	t.Setenv("S3_USE_SSL", "yes")

	cfg, err := Load()
	req.NoError(err)
	req.Equal(StoreMongo, cfg.StoreDriver)
	req.Equal([]string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	req.Equal(2*time.Second, cfg.OperationTimeout)
	req.True(cfg.S3UseSSL)
	req.Equal("http://minio:9000", cfg.S3PublicEndpoint)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":  {"AUTH_JWT_SECRET": ""},
		"mongo no uri":    {"STORE_DRIVER": "mongo", "MONGO_URI": ""},
		"unknown driver":  {"STORE_DRIVER": "redis"},
		"bad duration":    {"OPERATION_TIMEOUT": "soon"},
		"bad bool":        {"S3_USE_SSL": "maybe"},
		"ping after pong": {"WS_PING_INTERVAL": "2m", "WS_PONG_WAIT": "1m"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("AUTH_JWT_SECRET", "secret")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
