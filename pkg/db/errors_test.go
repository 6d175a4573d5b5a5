package db

import (
	"errors"
	"fmt"
	"testing"

	pgconnv1 "github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_subscriptions_source_line"}
	legacyErr := &pgconnv1.PgError{Code: "23505", ConstraintName: "ux_orders_order_number"}
	pqErr := &pq.Error{Code: "23505", Constraint: "orders_order_number_key"}

	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pgconn any", err: pgErr, want: true},
		{name: "pgconn wrapped match", err: fmt.Errorf("insert: %w", pgErr), constraint: "ux_subscriptions_source_line", want: true},
		{name: "pgconn other constraint", err: pgErr, constraint: "orders_order_number_key", want: false},
		{name: "pgconn other code", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "legacy pgconn match", err: legacyErr, constraint: "ux_orders_order_number", want: true},
		{name: "pq match", err: pqErr, constraint: "orders_order_number_key", want: true},
		{name: "sqlite message", err: errors.New("UNIQUE constraint failed: subscriptions.source_order_id, subscriptions.source_line_key"), want: true},
		{name: "sqlite ignores constraint name", err: errors.New("UNIQUE constraint failed: orders.order_number"), constraint: "ux_subscriptions_source_line", want: true},
		{name: "postgres message match", err: errors.New(`ERROR: duplicate key value violates unique constraint "ux_orders_order_number"`), constraint: "ux_orders_order_number", want: true},
		{name: "postgres message other constraint", err: errors.New(`ERROR: duplicate key value violates unique constraint "ux_orders_order_number"`), constraint: "ux_subscriptions_source_line", want: false},
		{name: "plain error", err: errors.New("connection reset"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsUniqueViolation(tc.err, tc.constraint))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("deadlock detected")))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsRetryable(fmt.Errorf("reserve: %w", &pgconn.PgError{Code: "40001"})))
	assert.True(t, IsRetryable(&pgconnv1.PgError{Code: "40P01"}))
	assert.True(t, IsRetryable(&pq.Error{Code: "40001"}))
}
