package feasibility

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bundlehub/internal/common"
)

type fixedBalance struct {
	balance decimal.Decimal
	err     error
}

func (f fixedBalance) SupplierBalance(context.Context) (decimal.Decimal, error) {
	return f.balance, f.err
}

func gate(balance int64, err error) *Gate {
	return &Gate{Source: fixedBalance{balance: decimal.NewFromInt(balance), err: err}, Logger: zerolog.Nop()}
}

func TestBlockedWhenBalanceBelowPrice(t *testing.T) {
	res := gate(30, nil).Check(context.Background(), decimal.NewFromInt(50))
	require.False(t, res.Allowed)
	require.True(t, res.LowBalance)

	appErr, ok := common.AsAppError(res.Err())
	require.True(t, ok)
	require.Equal(t, common.CodeInfeasible, appErr.Code)
	require.Equal(t, MaintenanceMessage, appErr.Message)
}

func TestAllowedWhenBalanceCoversPrice(t *testing.T) {
	res := gate(100, nil).Check(context.Background(), decimal.NewFromInt(50))
	require.True(t, res.Allowed)
	require.False(t, res.LowBalance)
	require.Empty(t, res.Notices)
	require.NoError(t, res.Err())
}

func TestLowBalanceNoticeDoesNotBlock(t *testing.T) {
	res := gate(40, nil).Check(context.Background(), decimal.NewFromInt(10))
	require.True(t, res.Allowed)
	require.True(t, res.LowBalance)
	require.Len(t, res.Notices, 1)
	require.Equal(t, common.NoticeWarning, res.Notices[0].Level)
}

func TestLookupFailureTreatedAsZero(t *testing.T) {
	res := gate(1000, errors.New("timeout")).Check(context.Background(), decimal.NewFromInt(1))
	require.False(t, res.Allowed)
	require.True(t, res.Balance.IsZero())
}
