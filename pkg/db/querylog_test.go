package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

func TestQueryLoggerOnlyReportsFailuresAndSlowStatements(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{Output: buf})
	q := newQueryLogger(logg, 100*time.Millisecond)
	ctx := logg.WithOrderID(context.Background(), "order-1")
	stmt := func() (string, int64) { return `SELECT * FROM "orders"`, 1 }

	q.Trace(ctx, time.Now(), stmt, nil)
	q.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	require.Zero(t, buf.Len())

	q.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	require.Contains(t, buf.String(), "db.query_slow")
	require.Contains(t, buf.String(), `"order_id":"order-1"`)

	buf.Reset()
	q.Trace(ctx, time.Now(), stmt, errors.New("relation does not exist"))
	require.Contains(t, buf.String(), "db.query_failed")
	require.Contains(t, buf.String(), `SELECT * FROM \"orders\"`)
}

func TestQueryLoggerWithoutServiceLoggerIsSilent(t *testing.T) {
	require.NotPanics(t, func() {
		newQueryLogger(nil, 0).Trace(context.Background(), time.Now(), func() (string, int64) { return "", 0 }, errors.New("x"))
	})
}
