package state

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modes1090/internal/tracker"
)

type entry struct {
	value []byte
	ttl   time.Duration
}

type fakeRedis struct {
	data   map[string]entry
	setErr error
	closed bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]entry)}
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "ping")
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key)
	if f.setErr != nil {
		cmd.SetErr(f.setErr)
		return cmd
	}
	f.data[key] = entry{value: value.([]byte), ttl: expiration}
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	e, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(string(e.value))
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "del")
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestStore_SaveAndGet(t *testing.T) {
	fake := newFakeRedis()
	s := NewWithClient(fake, time.Minute, testLogger())
	ctx := context.Background()

	seen := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ac := tracker.Aircraft{
		Hex: "4840D6", Callsign: "KLM1023 ", Altitude: 38000,
		Latitude: 52.2572, Longitude: 3.9194, ValidPosition: true,
		FirstSeen: seen, LastSeen: seen.Add(time.Minute),
	}
	require.NoError(t, s.Save(ctx, ac))

	stored, ok := fake.data["aircraft:4840D6"]
	require.True(t, ok)
	assert.Equal(t, time.Minute, stored.ttl)

	rec, err := s.Get(ctx, "4840D6")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "KLM1023 ", rec.Callsign)
	assert.Equal(t, 38000, rec.Altitude)
	assert.True(t, rec.ValidPosition)
	assert.True(t, seen.Equal(rec.FirstSeen))
	assert.True(t, seen.Add(time.Minute).Equal(rec.Aircraft.LastSeen))
}

func TestStore_GetMissing(t *testing.T) {
	s := NewWithClient(newFakeRedis(), 0, testLogger())

	rec, err := s.Get(context.Background(), "ABCDEF")
	assert.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, DefaultTTL, s.ttl)
}

func TestStore_Delete(t *testing.T) {
	fake := newFakeRedis()
	s := NewWithClient(fake, time.Minute, testLogger())
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, tracker.Aircraft{Hex: "4840D6"}))
	require.NoError(t, s.Delete(ctx, "4840D6"))
	assert.Empty(t, fake.data)
}

func TestStore_Sync(t *testing.T) {
	tests := []struct {
		name    string
		setErr  error
		wantErr bool
		stored  int
	}{
		{name: "all saved", stored: 3},
		{name: "server error", setErr: errors.New("READONLY"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeRedis()
			fake.setErr = tt.setErr
			s := NewWithClient(fake, time.Minute, testLogger())

			err := s.Sync(context.Background(), []tracker.Aircraft{{Hex: "000001"}, {Hex: "000002"}, {Hex: "000003"}})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, fake.data, tt.stored)
		})
	}
}

func TestStore_Close(t *testing.T) {
	fake := newFakeRedis()
	s := NewWithClient(fake, time.Minute, testLogger())
	require.NoError(t, s.Close())
	assert.True(t, fake.closed)
}

func TestNew_Unavailable(t *testing.T) {
	s, err := New("127.0.0.1:1", time.Minute, testLogger())
	if err == nil {
		s.Close()
		t.Skip("unexpected Redis server on port 1")
	}
	assert.Nil(t, s)
}
