package scylla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

var errSessionNotInitialized = errors.New("scylla: session not initialized")

type Options struct {
	Hosts             []string
	Keyspace          string
	Username          string
	Password          string
	Consistency       gocql.Consistency
	Timeout           time.Duration
	ReplicationFactor int
}

// ParseConsistency maps the configured level name onto gocql. Empty means quorum.
func ParseConsistency(raw string) (gocql.Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "quorum":
		return gocql.Quorum, nil
	case "one":
		return gocql.One, nil
	case "local_one", "localone":
		return gocql.LocalOne, nil
	case "local_quorum", "localquorum":
		return gocql.LocalQuorum, nil
	case "all":
		return gocql.All, nil
	default:
		return gocql.Quorum, fmt.Errorf("scylla: unsupported consistency %q", raw)
	}
}

// NewSession ensures the keyspace and chat tables exist and returns a session
// bound to the keyspace.
func NewSession(ctx context.Context, opts Options, logger *slog.Logger) (*gocql.Session, error) {
	if !keyspacePattern.MatchString(opts.Keyspace) {
		return nil, fmt.Errorf("scylla: invalid keyspace name %q", opts.Keyspace)
	}
	if len(opts.Hosts) == 0 {
		return nil, errors.New("scylla: at least one host is required")
	}
	if opts.ReplicationFactor <= 0 {
		opts.ReplicationFactor = 1
	}

	base := newCluster(opts)
	baseSession, err := base.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("scylla: connect: %w", err)
	}
	defer baseSession.Close()
	if err := ensureKeyspace(ctx, baseSession, opts); err != nil {
		return nil, err
	}

	cluster := newCluster(opts)
	cluster.Keyspace = opts.Keyspace
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("scylla: connect to keyspace %s: %w", opts.Keyspace, err)
	}
	if err := ensureTables(ctx, session); err != nil {
		session.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("scylla connected", "hosts", opts.Hosts, "keyspace", opts.Keyspace)
	}
	return session, nil
}

// Ping runs a trivial query against the system keyspace.
func Ping(ctx context.Context, session *gocql.Session) error {
	if session == nil {
		return errSessionNotInitialized
	}
	var release string
	return session.Query(`SELECT release_version FROM system.local`).WithContext(ctx).Consistency(gocql.One).Scan(&release)
}

func newCluster(opts Options) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(opts.Hosts...)
	cluster.Consistency = opts.Consistency
	if opts.Timeout > 0 {
		cluster.Timeout = opts.Timeout
		cluster.ConnectTimeout = opts.Timeout
	}
	if opts.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: opts.Username,
			Password: opts.Password,
		}
	}
	return cluster
}

func ensureKeyspace(ctx context.Context, session *gocql.Session, opts Options) error {
	cql := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		opts.Keyspace, opts.ReplicationFactor,
	)
	if err := session.Query(cql).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("scylla: create keyspace: %w", err)
	}
	return nil
}

var schema = []struct {
	name string
	cql  string
}{
	{"messages", `
CREATE TABLE IF NOT EXISTS messages (
	id text PRIMARY KEY,
	sender_id text,
	receiver_id text,
	content text,
	listing_ref text,
	attachment_url text,
	has_location boolean,
	lat double,
	lng double,
	address text,
	is_read boolean,
	read_at timestamp,
	deleted boolean,
	created_at timestamp,
	updated_at timestamp
)`},
	{"messages_by_pair", `
CREATE TABLE IF NOT EXISTS messages_by_pair (
	pair text,
	created_at timestamp,
	id text,
	PRIMARY KEY (pair, created_at, id)
) WITH CLUSTERING ORDER BY (created_at DESC, id DESC)`},
	{"messages_by_user", `
CREATE TABLE IF NOT EXISTS messages_by_user (
	user_id text,
	created_at timestamp,
	id text,
	PRIMARY KEY (user_id, created_at, id)
) WITH CLUSTERING ORDER BY (created_at ASC, id ASC)`},
	{"blocks", `
CREATE TABLE IF NOT EXISTS blocks (
	blocker_id text,
	blocked_id text,
	created_at timestamp,
	PRIMARY KEY (blocker_id, blocked_id)
)`},
	{"user_profiles", `
CREATE TABLE IF NOT EXISTS user_profiles (
	id text PRIMARY KEY,
	first_name text,
	last_name text,
	avatar_url text
)`},
}

func ensureTables(ctx context.Context, session *gocql.Session) error {
	for _, table := range schema {
		if err := session.Query(table.cql).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("scylla: create %s table: %w", table.name, err)
		}
	}
	return nil
}

// nullableTime keeps unset timestamps as CQL nulls instead of the epoch.
func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// fromTimestamp treats the epoch and the zero value as unset.
func fromTimestamp(t time.Time) time.Time {
	if t.IsZero() || t.Unix() == 0 {
		return time.Time{}
	}
	return t.UTC()
}
