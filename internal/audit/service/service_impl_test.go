package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/affiliora/internal/audit/domain"
	"github.com/smallbiznis/affiliora/internal/audit/repository"
	"github.com/smallbiznis/affiliora/internal/clock"
	obscontext "github.com/smallbiznis/affiliora/internal/observability/context"
	"github.com/smallbiznis/affiliora/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

func newTestService(t *testing.T) (auditdomain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:audit_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	})
	return svc, db, clk
}

func TestRecordUsesContextActorAndMasksSecrets(t *testing.T) {
	svc, db, _ := newTestService(t)

	ctx := obscontext.WithActor(context.Background(), "user", "42")
	ctx = obscontext.WithRequestID(ctx, "req-1")
	ctx = correlation.ContextWithCorrelationID(ctx, "corr-1")

	err := svc.Record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionOrderCreate,
		TargetType: "order",
		TargetID:   "900",
		Metadata: map[string]any{
			"payment_method_ref": "pm_card_4242424242",
			"items":              float64(2),
		},
		IPAddress: "10.0.0.1",
	})
	require.NoError(t, err)

	var stored auditdomain.AuditLog
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, "user", stored.ActorType)
	require.NotNil(t, stored.ActorID)
	assert.Equal(t, "42", *stored.ActorID)
	require.NotNil(t, stored.TargetID)
	assert.Equal(t, "900", *stored.TargetID)
	require.NotNil(t, stored.IPAddress)
	assert.Nil(t, stored.UserAgent)

	assert.Equal(t, "pm_card_****4242", stored.Metadata["payment_method_ref"])
	assert.Equal(t, float64(2), stored.Metadata["items"])
	assert.Equal(t, "req-1", stored.Metadata["request_id"])
	assert.Equal(t, "corr-1", stored.Metadata["correlation_id"])
}

func TestRecordDefaults(t *testing.T) {
	svc, db, _ := newTestService(t)

	require.ErrorIs(t, svc.Record(context.Background(), auditdomain.Entry{Action: "  "}), auditdomain.ErrInvalidAction)

	require.NoError(t, svc.Record(context.Background(), auditdomain.Entry{Action: "order.expire"}))

	var stored auditdomain.AuditLog
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), stored.ActorType)
	assert.Equal(t, "unknown", stored.TargetType)
	assert.Nil(t, stored.ActorID)
	assert.Nil(t, stored.TargetID)
}

func TestRecordExplicitActorWins(t *testing.T) {
	svc, db, _ := newTestService(t)

	ctx := obscontext.WithActor(context.Background(), "gateway", "stripe")
	require.NoError(t, svc.Record(ctx, auditdomain.Entry{
		ActorType: "user",
		ActorID:   "7",
		Action:    auditdomain.ActionSubscriptionCancel,
	}))

	var stored auditdomain.AuditLog
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, "user", stored.ActorType)
	assert.Equal(t, "7", *stored.ActorID)
}

func TestListReturnsOwnEntriesNewestFirst(t *testing.T) {
	svc, _, clk := newTestService(t)

	record := func(actorID, action string) {
		ctx := obscontext.WithActor(context.Background(), "user", actorID)
		require.NoError(t, svc.Record(ctx, auditdomain.Entry{Action: action, TargetType: "order"}))
		clk.Advance(time.Minute)
	}
	record("1", auditdomain.ActionOrderCreate)
	record("2", auditdomain.ActionOrderCreate)
	record("1", auditdomain.ActionOrderCancel)

	logs, err := svc.List(context.Background(), auditdomain.ListRequest{ActorID: "1"})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, auditdomain.ActionOrderCancel, logs[0].Action)
	assert.Equal(t, auditdomain.ActionOrderCreate, logs[1].Action)

	filtered, err := svc.List(context.Background(), auditdomain.ListRequest{ActorID: "1", Action: auditdomain.ActionOrderCreate})
	require.NoError(t, err)
	require.Len(t, filtered, 1)

	paged, err := svc.List(context.Background(), auditdomain.ListRequest{ActorID: "1", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, auditdomain.ActionOrderCreate, paged[0].Action)
}

func TestListValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.List(context.Background(), auditdomain.ListRequest{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidActor)

	start := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = svc.List(context.Background(), auditdomain.ListRequest{ActorID: "1", StartAt: &start, EndAt: &end})
	assert.True(t, errors.Is(err, auditdomain.ErrInvalidTimeRange))
}
