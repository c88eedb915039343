package app

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"testing"
	"time"

	"github.com/medicrypt/recordvault/config"
	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/sealing"
	"github.com/medicrypt/recordvault/services/policy"
	"github.com/medicrypt/recordvault/wallet"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewDependencies(t *testing.T) {
	t.Run("memory backend wires every component", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = deps.Close(ctx) })

		// Infrastructure
		assert.NotNil(t, deps.Config)
		assert.NotNil(t, deps.Logger)
		assert.Nil(t, deps.RepoFactory)

		// Storage
		require.NotNil(t, deps.Repos)
		assert.NotNil(t, deps.TxManager)
		assert.NotNil(t, deps.Blobs)
		assert.NotNil(t, deps.Cipher)

		// Core and services
		assert.NotNil(t, deps.Tokens)
		assert.NotNil(t, deps.Engine)
		assert.NotNil(t, deps.ACL)
		assert.NotNil(t, deps.Ledger)
		assert.True(t, deps.Events.GetStats().Started)
		assert.NotNil(t, deps.Records)
		assert.NotNil(t, deps.Access)
		assert.NotNil(t, deps.Auth)
		assert.NotNil(t, deps.AuthMiddleware)
	})

	t.Run("filesystem blobs with configured identity", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Storage.BlobBackend = config.BlobBackendFS
		cfg.Storage.BlobDir = t.TempDir()

		identity, _, err := sealing.GenerateIdentity()
		require.NoError(t, err)
		cfg.Encryption.AgeIdentity = identity

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		patient := policy.Subject{Identity: "patient-wallet", Role: models.RolePatient}
		out, err := deps.Records.StoreArtifact(ctx, patient, "R1", []byte("discharge summary"))
		require.NoError(t, err)
		require.True(t, out.Decision.Allowed)

		entries, err := os.ReadDir(cfg.Storage.BlobDir)
		require.NoError(t, err)
		assert.NotEmpty(t, entries)

		report, err := deps.Records.ReadReport(ctx, patient, "R1")
		require.NoError(t, err)
		require.True(t, report.Decision.Allowed)
		assert.Equal(t, "discharge summary", string(report.Data.Artifacts[0].Content))
	})

	t.Run("invalid age identity", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Encryption.AgeIdentity = "AGE-SECRET-KEY-NOT-A-KEY"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize encryption")
	})

	t.Run("database connection failure", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.Backend = config.BackendPostgres
		cfg.Database = config.DatabaseConfig{
			Host:            "127.0.0.1",
			Port:            1,
			User:            "recordvault",
			Password:        "recordvault",
			Database:        "recordvault_test",
			SSLMode:         "disable",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: time.Minute,
		}

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize storage")
	})
}

func TestDependencies_SignupSignin(t *testing.T) {
	ctx := context.Background()
	deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer deps.Close(ctx)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	address := wallet.FormatAddress(pub)

	_, err = deps.Auth.Signup(ctx, address, "doctor")
	require.NoError(t, err)

	message := "sign in to recordvault"
	signature := base58.Encode(ed25519.Sign(priv, []byte(message)))

	session, err := deps.Auth.Signin(ctx, address, message, signature)
	require.NoError(t, err)

	identity, err := deps.Tokens.Verify(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, address, identity.WalletAddress)
	assert.Equal(t, models.RoleDoctor, identity.Role)
}

func TestDependenciesClose(t *testing.T) {
	t.Run("graceful shutdown", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)

		// A denial queues a security event that must be flushed on close
		_, err = deps.Records.Trends(ctx, policy.Subject{Identity: "p", Role: models.RolePatient})
		require.NoError(t, err)

		assert.NoError(t, deps.Close(ctx))

		events, err := deps.Repos.SecurityEvents.ListRecent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, models.SecurityEventAccessDenied, events[0].Kind)

		// Second close is a no-op
		assert.NoError(t, deps.Close(ctx))
	})
}

// Test helpers

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  1 << 20,
		},
		Token: config.TokenConfig{
			Secret: "test-secret",
			Issuer: "recordvault-test",
			TTL:    time.Hour,
		},
		Storage: config.StorageConfig{
			Backend:     config.BackendMemory,
			BlobBackend: config.BackendMemory,
			ZstdLevel:   3,
		},
		Events: config.EventsConfig{
			BufferSize:  16,
			WorkerCount: 1,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "text",
		},
	}
}
