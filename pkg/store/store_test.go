package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func newServer(name, apiURL string) *Server {
	return &Server{
		ID:        ServerID(apiURL),
		Name:      name,
		APIURL:    apiURL,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestServerID(t *testing.T) {
	sum := sha256.Sum256([]byte("http://localhost:8080"))

	assert.Equal(t, hex.EncodeToString(sum[:]), ServerID("http://localhost:8080"))
	assert.Len(t, ServerID("http://localhost:8080"), 64)
	assert.NotEqual(t, ServerID("http://localhost:8080"), ServerID("http://localhost:8080/"))
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		ServerID(""))
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	runStoreSuite(t, func(t *testing.T) Store {
		return NewMemoryStore(testLogger())
	})
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	runStoreSuite(t, func(t *testing.T) Store {
		return NewSQLiteStore(testLogger(), ":memory:")
	})
}

func TestRedisStore(t *testing.T) {
	t.Parallel()

	runStoreSuite(t, func(t *testing.T) Store {
		mr := miniredis.RunT(t)

		return NewRedisStore(testLogger(), &redis.Options{Addr: mr.Addr()}, "gheregistry")
	})
}

func TestRedisStoreDeleteClearsIndexes(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	st := NewRedisStore(testLogger(), &redis.Options{Addr: mr.Addr()}, "gheregistry")
	require.NoError(t, st.Start(ctx))
	t.Cleanup(func() { _ = st.Stop() })

	server := newServer("My Server", "http://ghe.example.com")
	require.NoError(t, st.CreateServer(ctx, server))

	assert.True(t, mr.Exists("gheregistry:server:"+server.ID))
	assert.True(t, mr.Exists("gheregistry:server:name:My Server"))

	require.NoError(t, st.DeleteServer(ctx, server.ID))

	assert.False(t, mr.Exists("gheregistry:server:"+server.ID))
	assert.False(t, mr.Exists("gheregistry:server:name:My Server"))


	servers, err := st.ListServers(ctx)
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func runStoreSuite(t *testing.T, factory func(t *testing.T) Store) {
	t.Helper()

	setup := func(t *testing.T) (context.Context, Store) {
		t.Helper()

		ctx := context.Background()
		st := factory(t)

		require.NoError(t, st.Start(ctx))
		t.Cleanup(func() { _ = st.Stop() })
		require.NoError(t, st.Migrate(ctx))
		require.NoError(t, st.Ping(ctx))

		return ctx, st
	}

	t.Run("empty store", func(t *testing.T) {
		ctx, st := setup(t)

		servers, err := st.ListServers(ctx)
		require.NoError(t, err)
		assert.Empty(t, servers)

		server, err := st.GetServer(ctx, ServerID("http://nowhere"))
		require.NoError(t, err)
		assert.Nil(t, server)

		server, err = st.GetServerByName(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, server)
	})

	t.Run("create get and list in insertion order", func(t *testing.T) {
		ctx, st := setup(t)

		names := []string{"zeta", "alpha", "mu"}
		for i, name := range names {
			require.NoError(t, st.CreateServer(ctx, newServer(name, "http://ghe"+string(rune('0'+i))+".example.com")))
		}

		servers, err := st.ListServers(ctx)
		require.NoError(t, err)
		require.Len(t, servers, 3)

		for i, server := range servers {
			assert.Equal(t, names[i], server.Name)
		}

		got, err := st.GetServer(ctx, ServerID("http://ghe1.example.com"))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "alpha", got.Name)
		assert.Equal(t, "http://ghe1.example.com", got.APIURL)

		byName, err := st.GetServerByName(ctx, "mu")
		require.NoError(t, err)
		require.NotNil(t, byName)
		assert.Equal(t, ServerID("http://ghe2.example.com"), byName.ID)
	})

	t.Run("duplicates are rejected", func(t *testing.T) {
		ctx, st := setup(t)

		require.NoError(t, st.CreateServer(ctx, newServer("one", "http://one.example.com")))

		err := st.CreateServer(ctx, newServer("one", "http://other.example.com"))
		require.ErrorIs(t, err, ErrDuplicate)

		err = st.CreateServer(ctx, newServer("two", "http://one.example.com"))
		require.ErrorIs(t, err, ErrDuplicate)

		servers, err := st.ListServers(ctx)
		require.NoError(t, err)
		assert.Len(t, servers, 1)
	})

	t.Run("concurrent duplicates", func(t *testing.T) {
		ctx, st := setup(t)

		const workers = 8

		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			created    int
			duplicates int
			failures   []error
		)

		for i := 0; i < workers; i++ {
			i := i
			wg.Add(1)

			go func() {
				defer wg.Done()

				// Same name each time, so every insert collides with the winner.
				err := st.CreateServer(ctx, newServer("racer", fmt.Sprintf("http://racer%d.example.com", i%2)))

				mu.Lock()
				defer mu.Unlock()

				switch {
				case err == nil:
					created++
				case errors.Is(err, ErrDuplicate):
					duplicates++
				default:
					failures = append(failures, err)
				}
			}()
		}

		wg.Wait()

		assert.Empty(t, failures)
		assert.Equal(t, 1, created)
		assert.Equal(t, workers-1, duplicates)

		servers, err := st.ListServers(ctx)
		require.NoError(t, err)
		assert.Len(t, servers, 1)
	})

	t.Run("delete", func(t *testing.T) {
		ctx, st := setup(t)

		first := newServer("first", "http://first.example.com")
		second := newServer("second", "http://second.example.com")

		require.NoError(t, st.CreateServer(ctx, first))
		require.NoError(t, st.CreateServer(ctx, second))
		require.NoError(t, st.DeleteServer(ctx, first.ID))

		got, err := st.GetServer(ctx, first.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		servers, err := st.ListServers(ctx)
		require.NoError(t, err)
		require.Len(t, servers, 1)
		assert.Equal(t, "second", servers[0].Name)

		// The name is free again once its server is gone.
		require.NoError(t, st.CreateServer(ctx, newServer("first", "http://first-again.example.com")))

		// Deleting an unknown id is not an error.
		require.NoError(t, st.DeleteServer(ctx, ServerID("http://unknown")))
	})
}

func TestDecodeServer(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	server := &Server{ID: ServerID("http://a"), Name: "a", APIURL: "http://a", CreatedAt: created}

	encoded := encodeServer(server)
	raw := make(map[string]string, len(encoded))

	for k, v := range encoded {
		raw[k] = v.(string)
	}

	decoded, err := decodeServer(raw)
	require.NoError(t, err)
	assert.Equal(t, server, decoded)

	missing, err := decodeServer(map[string]string{})
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = decodeServer(map[string]string{"id": "x", "createdAt": "yesterday"})
	require.Error(t, err)
}

func TestRedisKeys(t *testing.T) {
	st := &RedisStore{prefix: "gheregistry"}

	assert.Equal(t, "gheregistry:server:abc", st.serverKey("abc"))
	assert.Equal(t, "gheregistry:server:name:My Server", st.nameKey("My Server"))
	assert.Equal(t, "gheregistry:servers", st.listKey())
	assert.Equal(t, "gheregistry:servers:seq", st.seqKey())
}
