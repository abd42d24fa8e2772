package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/require"

	"finhealth/internal/router"
)

func sampleResult() *router.Result {
	return &router.Result{
		RunID:            "run-1",
		Company:          "ACME",
		Status:           router.StatusCompleted,
		ModulesCompleted: []string{"borrowings"},
		OverallScore:     61,
	}
}

func TestCacheKey(t *testing.T) {
	require.Equal(t, "finhealth:analysis:ACME:FY2025", cacheKey("ACME", "FY2025"))
}

func TestGetMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db, time.Minute)

	mock.ExpectGet(cacheKey("ACME", "FY2025")).RedisNil()

	res, hit, err := c.Get(context.Background(), "ACME", "FY2025")
	require.NoError(t, err)
	require.False(t, hit)
	require.Nil(t, res)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db, time.Minute)

	raw, err := json.Marshal(sampleResult())
	require.NoError(t, err)
	mock.ExpectGet(cacheKey("ACME", "FY2025")).SetVal(string(raw))

	res, hit, err := c.Get(context.Background(), "ACME", "FY2025")
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "run-1", res.RunID)
	require.Equal(t, 61, res.OverallScore)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCorruptEntryIsMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db, time.Minute)

	mock.ExpectGet(cacheKey("ACME", "FY2025")).SetVal("{not json")

	res, hit, err := c.Get(context.Background(), "ACME", "FY2025")
	require.NoError(t, err, "corrupt entries must read as misses")
	require.False(t, hit)
	require.Nil(t, res)
}

func TestGetTransportError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db, time.Minute)

	mock.ExpectGet(cacheKey("ACME", "FY2025")).SetErr(errors.New("connection refused"))

	_, hit, err := c.Get(context.Background(), "ACME", "FY2025")
	require.Error(t, err)
	require.False(t, hit)
}

func TestPut(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db, 15*time.Minute)

	raw, err := json.Marshal(sampleResult())
	require.NoError(t, err)
	mock.ExpectSet(cacheKey("ACME", "FY2025"), raw, 15*time.Minute).SetVal("OK")

	require.NoError(t, c.Put(context.Background(), "ACME", "FY2025", sampleResult()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db, time.Minute)

	mock.ExpectDel(cacheKey("ACME", "FY2025")).SetVal(1)

	require.NoError(t, c.Invalidate(context.Background(), "ACME", "FY2025"))
	require.NoError(t, mock.ExpectationsWereMet())
}
