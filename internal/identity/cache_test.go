package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedDirectory_Hit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &stubDirectory{}
	c := NewCachedDirectory(next, db, time.Minute, zerolog.Nop())

	mock.ExpectGet(cacheKey("alice")).SetVal(`["` + aliceAddr + `"]`)

	addrs, err := c.VerifiedAddresses(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{aliceAddr}, addrs)
	assert.Zero(t, next.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedDirectory_MissStores(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &stubDirectory{addrs: map[string][]string{"alice": {aliceAddr}}}
	c := NewCachedDirectory(next, db, time.Minute, zerolog.Nop())

	mock.ExpectGet(cacheKey("alice")).RedisNil()
	mock.ExpectSet(cacheKey("alice"), []byte(`["`+aliceAddr+`"]`), time.Minute).SetVal("OK")

	addrs, err := c.VerifiedAddresses(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{aliceAddr}, addrs)
	assert.Equal(t, 1, next.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedDirectory_EmptyNotCached(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &stubDirectory{}
	c := NewCachedDirectory(next, db, time.Minute, zerolog.Nop())

	mock.ExpectGet(cacheKey("ghost")).RedisNil()

	addrs, err := c.VerifiedAddresses(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, addrs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedDirectory_RedisDownFallsThrough(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &stubDirectory{addrs: map[string][]string{"alice": {aliceAddr}}}
	c := NewCachedDirectory(next, db, time.Minute, zerolog.Nop())

	mock.ExpectGet(cacheKey("alice")).SetErr(errors.New("connection refused"))
	mock.ExpectSet(cacheKey("alice"), []byte(`["`+aliceAddr+`"]`), time.Minute).SetErr(errors.New("connection refused"))

	addrs, err := c.VerifiedAddresses(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{aliceAddr}, addrs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedDirectory_UpstreamErrorPropagates(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &stubDirectory{err: errors.New("503")}
	c := NewCachedDirectory(next, db, time.Minute, zerolog.Nop())

	mock.ExpectGet(cacheKey("alice")).RedisNil()

	_, err := c.VerifiedAddresses(context.Background(), "alice")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
