package scylla

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/gocql/gocql"

	"rentme-reservations/internal/infra/config"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// NewSession ensures schema exists and returns a connected Scylla session.
func NewSession(ctx context.Context, cfg config.Config, logger *slog.Logger) (*gocql.Session, error) {
	if !keyspacePattern.MatchString(cfg.ScyllaKeyspace) {
		return nil, fmt.Errorf("invalid keyspace name: %s", cfg.ScyllaKeyspace)
	}

	baseSession, err := newCluster(cfg, "").CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to scylla: %w", err)
	}
	defer baseSession.Close()
	if err := ensureKeyspace(ctx, baseSession, cfg); err != nil {
		return nil, err
	}

	session, err := newCluster(cfg, cfg.ScyllaKeyspace).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to keyspace %s: %w", cfg.ScyllaKeyspace, err)
	}
	if err := ensureTables(ctx, session, cfg.ScyllaKeyspace); err != nil {
		session.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("scylla connected", "hosts", cfg.ScyllaHosts, "keyspace", cfg.ScyllaKeyspace)
	}
	return session, nil
}

func newCluster(cfg config.Config, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.ScyllaHosts...)
	cluster.Timeout = cfg.ScyllaTimeout
	cluster.ConnectTimeout = cfg.ScyllaTimeout
	cluster.Consistency = cfg.ScyllaConsistency
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Keyspace = keyspace
	if cfg.ScyllaUsername != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.ScyllaUsername,
			Password: cfg.ScyllaPassword,
		}
	}
	return cluster
}

func ensureKeyspace(ctx context.Context, session *gocql.Session, cfg config.Config) error {
	rf := cfg.ScyllaReplicationFactor
	if rf <= 0 {
		rf = 1
	}
	cql := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		cfg.ScyllaKeyspace, rf,
	)
	if err := session.Query(cql).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create keyspace: %w", err)
	}
	return nil
}

func ensureTables(ctx context.Context, session *gocql.Session, keyspace string) error {
	threads := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.reservation_threads (
	reservation_id text PRIMARY KEY,
	first_message_id timeuuid,
	created_at timestamp
);`, keyspace)
	if err := session.Query(threads).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create reservation_threads table: %w", err)
	}

	messages := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.reservation_messages (
	reservation_id text,
	message_id timeuuid,
	sender_id text,
	recipient_id text,
	body text,
	system boolean,
	created_at timestamp,
	PRIMARY KEY (reservation_id, message_id)
) WITH CLUSTERING ORDER BY (message_id ASC);`, keyspace)
	if err := session.Query(messages).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create reservation_messages table: %w", err)
	}
	return nil
}
