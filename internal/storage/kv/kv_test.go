package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// backends — общий набор тестов выполняется для обеих реализаций.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "meta", "metadata.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_UnknownNamespace(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Namespace("files")
			assert.ErrorIs(t, err, ErrUnknownNamespace)
		})
	}
}

func TestNamespace_GetInsertRemove(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ns, err := store.Namespace(NamespaceMedia)
			require.NoError(t, err)

			_, err = ns.Get(ctx, "a")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, ns.Insert(ctx, "a", []byte("1")))
			require.NoError(t, ns.Insert(ctx, "a", []byte("2")))

			v, err := ns.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "2", string(v))

			require.NoError(t, ns.Remove(ctx, "a"))
			require.NoError(t, ns.Remove(ctx, "a"))
			_, err = ns.Get(ctx, "a")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, ns.Flush(ctx))
			require.NoError(t, store.Ping(ctx))
		})
	}
}

func TestNamespace_Isolation(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			media, _ := store.Namespace(NamespaceMedia)
			user, _ := store.Namespace(NamespaceUser)

			require.NoError(t, media.Insert(ctx, "k", []byte("media")))
			_, err := user.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestNamespace_ScanOrder(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ns, _ := store.Namespace(NamespaceMedia)

			for _, k := range []string{"zz", "aa", "mm"} {
				require.NoError(t, ns.Insert(ctx, k, []byte(k)))
			}
			// перезапись не меняет позицию ключа
			require.NoError(t, ns.Insert(ctx, "zz", []byte("updated")))
			require.NoError(t, ns.Remove(ctx, "aa"))
			require.NoError(t, ns.Insert(ctx, "aa", []byte("again")))

			entries, err := ns.Scan(ctx)
			require.NoError(t, err)

			keys := make([]string, 0, len(entries))
			for _, e := range entries {
				keys = append(keys, e.Key)
			}
			assert.Equal(t, []string{"zz", "mm", "aa"}, keys)
			assert.Equal(t, "updated", string(entries[0].Value))
		})
	}
}

func TestNamespace_UpdateAndFetch(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ns, _ := store.Namespace(NamespaceUser)

			// отсутствующий ключ — fn получает nil
			got, err := ns.UpdateAndFetch(ctx, "c", func(old []byte) ([]byte, error) {
				assert.Nil(t, old)
				return []byte("1"), nil
			})
			require.NoError(t, err)
			assert.Equal(t, "1", string(got))

			// ошибка fn отменяет изменение
			boom := errors.New("boom")
			_, err = ns.UpdateAndFetch(ctx, "c", func([]byte) ([]byte, error) {
				return nil, boom
			})
			assert.ErrorIs(t, err, boom)
			v, err := ns.Get(ctx, "c")
			require.NoError(t, err)
			assert.Equal(t, "1", string(v))

			// nil удаляет ключ
			got, err = ns.UpdateAndFetch(ctx, "c", func([]byte) ([]byte, error) { return nil, nil })
			require.NoError(t, err)
			assert.Nil(t, got)
			_, err = ns.Get(ctx, "c")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestNamespace_UpdateAndFetchConcurrent(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ns, _ := store.Namespace(NamespaceMedia)
			require.NoError(t, ns.Insert(ctx, "counter", []byte("0")))

			const n = 25
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := ns.UpdateAndFetch(ctx, "counter", func(old []byte) ([]byte, error) {
						v, err := strconv.Atoi(string(old))
						if err != nil {
							return nil, err
						}
						return []byte(strconv.Itoa(v + 1)), nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			v, err := ns.Get(ctx, "counter")
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprint(n), string(v))
		})
	}
}

func TestSQLite_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "metadata.db")

	store, err := OpenSQLite(ctx, path, testLogger())
	require.NoError(t, err)
	ns, _ := store.Namespace(NamespaceInvite)
	require.NoError(t, ns.Insert(ctx, "key", []byte("value")))
	require.NoError(t, ns.Flush(ctx))
	require.NoError(t, store.Close())

	// повторное открытие: миграции уже применены, данные на месте
	store, err = OpenSQLite(ctx, path, testLogger())
	require.NoError(t, err)
	defer store.Close()

	ns, _ = store.Namespace(NamespaceInvite)
	v, err := ns.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", string(v))

	status, _ := store.CheckReady()
	assert.Equal(t, "ok", status)
}
