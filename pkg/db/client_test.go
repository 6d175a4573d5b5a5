package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketsettle/pkg/logger"
)

type ledgerRow struct {
	ID  int
	SKU string
}

func openLedger(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 newQueryLogger(logger.Nop(), time.Second),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&ledgerRow{}))
	return conn
}

func countRows(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsOrRollsBack(t *testing.T) {
	conn := openLedger(t)
	client := FromConn(conn)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{SKU: "committed"}).Error
	}))
	assert.EqualValues(t, 1, countRows(t, conn))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&ledgerRow{SKU: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	assert.EqualValues(t, 1, countRows(t, conn))
}

func TestWithTxRetriesAbortedTransactions(t *testing.T) {
	conn := openLedger(t)
	client := &Client{conn: conn, txAttempts: 3, backoff: func(int) time.Duration { return 0 }}

	calls := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		if err := tx.Create(&ledgerRow{SKU: "reserve"}).Error; err != nil {
			return err
		}
		if calls < 3 {
			return &pgconn.PgError{Code: "40P01"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.EqualValues(t, 1, countRows(t, conn))

	calls = 0
	err = client.WithTx(context.Background(), func(*gorm.DB) error {
		calls++
		return &pgconn.PgError{Code: "40001"}
	})
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 3, calls)

	calls = 0
	err = client.WithTx(context.Background(), func(*gorm.DB) error {
		calls++
		return errors.New("validation")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithTxStopsRetryingOnCancel(t *testing.T) {
	client := &Client{conn: openLedger(t), txAttempts: 5, backoff: func(int) time.Duration { return time.Hour }}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := client.WithTx(ctx, func(*gorm.DB) error {
		calls++
		cancel()
		return &pgconn.PgError{Code: "40001"}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPingAndClose(t *testing.T) {
	client := FromConn(openLedger(t))
	require.NoError(t, client.Ping(context.Background()))
	require.NoError(t, client.Close())
	assert.Error(t, client.Ping(context.Background()))
}

func TestTxBackoffGrows(t *testing.T) {
	assert.Equal(t, 25*time.Millisecond, txBackoff(1))
	assert.Equal(t, 100*time.Millisecond, txBackoff(2))
}
