package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gocql/gocql"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"marketchat/internal/domain/blocks"
	"marketchat/internal/domain/messaging"
	domainuser "marketchat/internal/domain/user"
	"marketchat/internal/infra/config"
	mongostore "marketchat/internal/infra/db/mongo"
	"marketchat/internal/infra/obs"
	"marketchat/internal/infra/storage/memory"
	"marketchat/internal/infra/storage/scylla"
)

type storage struct {
	messages messaging.Repository
	blocks   blocks.Repository
	users    domainuser.Directory
	checks   map[string]obs.Check
	close    func(ctx context.Context) error

	// mongoDB is set for the mongo driver; the notification outbox and the
	// listing inbox live next to the messages.
	mongoDB *mongodriver.Database
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		return openMongo(ctx, cfg, logger)
	case config.StoreScylla:
		return openScylla(ctx, cfg, logger)
	default:
		return openMemory(cfg, logger)
	}
}

func openMemory(cfg config.Config, logger *slog.Logger) (storage, error) {
	users := memory.NewUserDirectory()
	if cfg.UsersFixtures != "" {
		f, err := os.Open(cfg.UsersFixtures)
		if err != nil {
			return storage{}, fmt.Errorf("open users fixtures: %w", err)
		}
		defer f.Close()
		n, err := users.ReadProfiles(f)
		if err != nil {
			return storage{}, err
		}
		logger.Info("user fixtures loaded", "count", n)
	}
	logger.Warn("using in-memory storage, data is lost on restart")
	return storage{
		messages: memory.NewMessageRepository(),
		blocks:   memory.NewBlockRepository(),
		users:    users,
		checks:   map[string]obs.Check{},
		close:    func(context.Context) error { return nil },
	}, nil
}

func openMongo(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	client, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return storage{}, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.EnsureIndexes(ctx); err != nil {
		_ = client.Close(ctx)
		return storage{}, err
	}
	logger.Info("mongo connected", "database", cfg.MongoDB)
	return storage{
		messages: mongostore.NewMessageRepository(client.DB),
		blocks:   mongostore.NewBlockRepository(client.DB),
		users:    mongostore.NewUserDirectory(client.DB),
		mongoDB:  client.DB,
		checks:   map[string]obs.Check{"mongo": client.Ping},
		close:    client.Close,
	}, nil
}

func openScylla(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	consistency, err := scylla.ParseConsistency(cfg.ScyllaConsistency)
	if err != nil {
		return storage{}, err
	}
	session, err := scylla.NewSession(ctx, scylla.Options{
		Hosts:             cfg.ScyllaHosts,
		Keyspace:          cfg.ScyllaKeyspace,
		Username:          cfg.ScyllaUsername,
		Password:          cfg.ScyllaPassword,
		Consistency:       consistency,
		Timeout:           cfg.ScyllaTimeout,
		ReplicationFactor: cfg.ScyllaReplicationFactor,
	}, logger)
	if err != nil {
		return storage{}, err
	}
	return storage{
		messages: scylla.NewMessageStore(session),
		blocks:   scylla.NewBlockStore(session),
		users:    scylla.NewUserDirectory(session),
		checks: map[string]obs.Check{"scylla": func(ctx context.Context) error {
			return scylla.Ping(ctx, session)
		}},
		close: closeSession(session),
	}, nil
}

func closeSession(session *gocql.Session) func(context.Context) error {
	return func(context.Context) error {
		session.Close()
		return nil
	}
}
