package session

import (
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aliyun_voice_wizard/internal/config"
)

func TestFileStorage(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStorage(dir)
	require.NoError(t, err)

	_, ok, err := s.Get(ConfigKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ConfigKey, `{"appKey":"a"}`))
	v, ok, err := s.Get(ConfigKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"appKey":"a"}`, v)

	require.NoError(t, s.Remove(ConfigKey))
	require.NoError(t, s.Remove(ConfigKey))
	_, ok, _ = s.Get(ConfigKey)
	assert.False(t, ok)
}

func TestRedisStorage(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStorage(db, "voice_wizard:", time.Hour)

	mock.ExpectGet("voice_wizard:" + ConfigKey).RedisNil()
	mock.ExpectSet("voice_wizard:"+ConfigKey, `{"appKey":"a"}`, time.Hour).SetVal("OK")
	mock.ExpectGet("voice_wizard:" + ConfigKey).SetVal(`{"appKey":"a"}`)
	mock.ExpectDel("voice_wizard:" + ConfigKey).SetVal(1)

	_, ok, err := s.Get(ConfigKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ConfigKey, `{"appKey":"a"}`))

	v, ok, err := s.Get(ConfigKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"appKey":"a"}`, v)

	require.NoError(t, s.Remove(ConfigKey))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStorageError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStorage(db, "p:", time.Minute)

	mock.ExpectGet("p:k").SetErr(errors.New("connection refused"))

	_, _, err := s.Get("k")
	assert.ErrorContains(t, err, "connection refused")
}

func TestOpen(t *testing.T) {
	s, closeFn, err := Open(config.StorageConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, s)
	assert.NoError(t, closeFn())

	s, _, err = Open(config.StorageConfig{Driver: "file", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStorage{}, s)

	_, _, err = Open(config.StorageConfig{Driver: "etcd"})
	assert.Error(t, err)
}
