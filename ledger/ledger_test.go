package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/anjiri1684/tutor_live/apperrors"
	"github.com/anjiri1684/tutor_live/models"
	"github.com/anjiri1684/tutor_live/repository/memory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type failingStore struct{ err error }

func (f failingStore) ApplyCredit(context.Context, *models.LedgerCredit) (bool, error) {
	return false, f.err
}

func (f failingStore) LedgerBalance(context.Context, uuid.UUID) (decimal.Decimal, error) {
	return decimal.Zero, f.err
}

func TestCreditIsIdempotentPerReference(t *testing.T) {
	ctx := context.Background()
	l := New(memory.New(), Config{}, discard)
	payee, ref := uuid.New(), uuid.New()

	require.NoError(t, l.Credit(ctx, payee, decimal.RequireFromString("25.50"), "usd", ref))
	require.NoError(t, l.Credit(ctx, payee, decimal.RequireFromString("25.50"), "usd", ref))

	bal, err := l.Balance(ctx, payee)
	require.NoError(t, err)
	assert.Equal(t, "25.50", bal.StringFixed(2))
}

func TestCreditAppliesCommission(t *testing.T) {
	ctx := context.Background()
	l := New(memory.New(), Config{CommissionRate: decimal.RequireFromString("0.15")}, discard)
	payee := uuid.New()

	require.NoError(t, l.Credit(ctx, payee, decimal.NewFromInt(100), "usd", uuid.New()))
	require.NoError(t, l.Credit(ctx, payee, decimal.NewFromInt(40), "usd", uuid.New()))

	bal, err := l.Balance(ctx, payee)
	require.NoError(t, err)
	assert.Equal(t, "119.00", bal.StringFixed(2))
}

func TestCreditRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	l := New(memory.New(), Config{}, discard)

	err := l.Credit(ctx, uuid.Nil, decimal.NewFromInt(1), "usd", uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	err = l.Credit(ctx, uuid.New(), decimal.Zero, "usd", uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreditPropagatesStoreError(t *testing.T) {
	boom := errors.New("connection reset")
	l := New(failingStore{err: boom}, Config{}, discard)

	err := l.Credit(context.Background(), uuid.New(), decimal.NewFromInt(1), "usd", uuid.New())
	assert.ErrorIs(t, err, boom)
}

func TestOutOfRangeCommissionIsIgnored(t *testing.T) {
	l := New(memory.New(), Config{CommissionRate: decimal.NewFromInt(2)}, discard)
	assert.Equal(t, "10.00", l.Net(decimal.NewFromInt(10)).StringFixed(2))
}
