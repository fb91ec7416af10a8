package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisStore implements Store using Redis.
//
// Each server is a hash under <prefix>:server:<id>. A name index maps
// <prefix>:server:name:<name> to the id, and the sorted set <prefix>:servers
// keeps ids in insertion order, scored by the <prefix>:servers:seq counter.
type RedisStore struct {
	log    logrus.FieldLogger
	opts   *redis.Options
	prefix string
	client *redis.Client
}

// Ensure RedisStore implements Store.
var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a new Redis store.
func NewRedisStore(log logrus.FieldLogger, opts *redis.Options, prefix string) Store {
	return &RedisStore{
		log:    log.WithField("component", "store"),
		opts:   opts,
		prefix: prefix,
	}
}

// Start opens the Redis connection.
func (s *RedisStore) Start(ctx context.Context) error {
	s.log.WithField("addr", s.opts.Addr).Info("Connecting to Redis")

	client := redis.NewClient(s.opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return fmt.Errorf("pinging redis: %w", err)
	}

	s.client = client

	return nil
}

// Stop closes the Redis connection.
func (s *RedisStore) Stop() error {
	if s.client != nil {
		return s.client.Close()
	}

	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Migrate is a no-op; Redis keys need no schema.
func (s *RedisStore) Migrate(_ context.Context) error {
	s.log.Debug("Redis store has no migrations")

	return nil
}

func (s *RedisStore) serverKey(id string) string {
	return fmt.Sprintf("%s:server:%s", s.prefix, id)
}

func (s *RedisStore) nameKey(name string) string {
	return fmt.Sprintf("%s:server:name:%s", s.prefix, name)
}

func (s *RedisStore) listKey() string {
	return s.prefix + ":servers"
}

func (s *RedisStore) seqKey() string {
	return s.prefix + ":servers:seq"
}

// CreateServer inserts a new server. The id and name keys are watched so a
// concurrent insert of the same server aborts with ErrDuplicate.
func (s *RedisStore) CreateServer(ctx context.Context, server *Server) error {
	serverKey := s.serverKey(server.ID)
	nameKey := s.nameKey(server.Name)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, serverKey, nameKey).Result()
		if err != nil {
			return err
		}

		if n > 0 {
			return ErrDuplicate
		}

		seq, err := tx.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, serverKey, encodeServer(server))
			pipe.Set(ctx, nameKey, server.ID, 0)
			pipe.ZAdd(ctx, s.listKey(), redis.Z{Score: float64(seq), Member: server.ID})

			return nil
		})

		return err
	}, serverKey, nameKey)

	if errors.Is(err, ErrDuplicate) || errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("inserting server: %w", ErrDuplicate)
	}

	if err != nil {
		return fmt.Errorf("inserting server: %w", err)
	}

	return nil
}

// GetServer retrieves a server by ID.
func (s *RedisStore) GetServer(ctx context.Context, id string) (*Server, error) {
	data, err := s.client.HGetAll(ctx, s.serverKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("querying server: %w", err)
	}

	return decodeServer(data)
}

// GetServerByName retrieves a server by its display name.
func (s *RedisStore) GetServerByName(ctx context.Context, name string) (*Server, error) {
	id, err := s.client.Get(ctx, s.nameKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("querying server name: %w", err)
	}

	return s.GetServer(ctx, id)
}

// ListServers retrieves all servers in insertion order.
func (s *RedisStore) ListServers(ctx context.Context) ([]*Server, error) {
	ids, err := s.client.ZRange(ctx, s.listKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("querying servers: %w", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, 0, len(ids))

	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			cmds = append(cmds, pipe.HGetAll(ctx, s.serverKey(id)))
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("querying servers: %w", err)
	}

	servers := make([]*Server, 0, len(ids))

	for _, cmd := range cmds {
		server, err := decodeServer(cmd.Val())
		if err != nil {
			return nil, err
		}

		// Skip ids whose hash disappeared between the two reads.
		if server != nil {
			servers = append(servers, server)
		}
	}

	return servers, nil
}

// DeleteServer deletes a server by ID.
func (s *RedisStore) DeleteServer(ctx context.Context, id string) error {
	server, err := s.GetServer(ctx, id)
	if err != nil {
		return err
	}

	if server == nil {
		return nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.serverKey(id), s.nameKey(server.Name))
		pipe.ZRem(ctx, s.listKey(), id)

		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting server: %w", err)
	}

	return nil
}

// encodeServer converts a server to the field map stored in its hash.
func encodeServer(server *Server) map[string]any {
	return map[string]any{
		"id":        server.ID,
		"name":      server.Name,
		"apiUrl":    server.APIURL,
		"createdAt": server.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// decodeServer converts a stored hash back to a server. An empty hash means
// the server does not exist.
func decodeServer(data map[string]string) (*Server, error) {
	if len(data) == 0 {
		return nil, nil
	}

	server := &Server{
		ID:     data["id"],
		Name:   data["name"],
		APIURL: data["apiUrl"],
	}

	if raw := data["createdAt"]; raw != "" {
		createdAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parsing createdAt of server %s: %w", server.ID, err)
		}

		server.CreatedAt = createdAt
	}

	return server, nil
}
