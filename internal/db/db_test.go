package db_test

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	"MailRamp/internal/audit"
	"MailRamp/internal/capacity"
	"MailRamp/internal/db"
	"MailRamp/internal/dispatch"
	"MailRamp/internal/jobs"
	"MailRamp/internal/memstore"
	"MailRamp/internal/models"
	"MailRamp/internal/queue"
	"MailRamp/internal/warmup"
)

// Both stores must satisfy every consumer contract.
var (
	_ audit.Store    = (*db.Store)(nil)
	_ capacity.Store = (*db.Store)(nil)
	_ dispatch.Store = (*db.Store)(nil)
	_ jobs.Store     = (*db.Store)(nil)
	_ queue.Store    = (*db.Store)(nil)
	_ warmup.Store   = (*db.Store)(nil)

	_ audit.Store    = (*memstore.Store)(nil)
	_ capacity.Store = (*memstore.Store)(nil)
	_ dispatch.Store = (*memstore.Store)(nil)
	_ jobs.Store     = (*memstore.Store)(nil)
	_ queue.Store    = (*memstore.Store)(nil)
	_ warmup.Store   = (*memstore.Store)(nil)
)

func TestNewRejectsEmptyURL(t *testing.T) {
	_, err := db.New(t.Context(), "")
	assert.Error(t, err)
}

func TestNewRejectsMalformedURL(t *testing.T) {
	_, err := db.New(t.Context(), "postgres://%zz")
	assert.Error(t, err)
}

func TestNotFoundMapping(t *testing.T) {
	assert.ErrorIs(t, db.NotFound(fmt.Errorf("scan: %w", pgx.ErrNoRows)), models.ErrNotFound)
	assert.NoError(t, db.NotFound(nil))

	other := fmt.Errorf("boom")
	assert.Equal(t, other, db.NotFound(other))
}

func TestLimitArg(t *testing.T) {
	assert.Nil(t, db.LimitArg(0))
	assert.Nil(t, db.LimitArg(-1))
	assert.Equal(t, 25, db.LimitArg(25))
}
