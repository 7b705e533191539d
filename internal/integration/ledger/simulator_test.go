package ledger

import (
	"context"
	"errors"
	"testing"

	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulator_BookAndReverse(t *testing.T) {
	sim := NewSimulator()
	ctx := context.Background()
	req := Request{SerialNumber: "S1", Amount: sharedDomain.MustMoney("100", "CNY")}

	res, err := sim.Accounting(ctx, req)
	require.NoError(t, err)
	assert.True(t, sim.Booked(res.TransactionID))

	require.NoError(t, sim.Reversal(ctx, ReversalRequest{TransactionID: res.TransactionID}))
	assert.False(t, sim.Booked(res.TransactionID))

	// a retried reversal converges
	require.NoError(t, sim.Reversal(ctx, ReversalRequest{TransactionID: res.TransactionID}))
	assert.Equal(t, 2, sim.Calls(OpReversal))
}

func TestSimulator_FreezeAndUnfreeze(t *testing.T) {
	sim := NewSimulator()
	ctx := context.Background()

	res, err := sim.Freeze(ctx, Request{SerialNumber: "S1", Amount: sharedDomain.MustMoney("100", "CNY")})
	require.NoError(t, err)
	assert.True(t, sim.Frozen(res.TransactionID))

	require.NoError(t, sim.Unfreeze(ctx, UnfreezeRequest{FreezeID: res.TransactionID}))
	assert.False(t, sim.Frozen(res.TransactionID))

	err = sim.Unfreeze(ctx, UnfreezeRequest{FreezeID: "missing"})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestSimulator_InjectedFailure(t *testing.T) {
	sim := NewSimulator()
	boom := errors.New("down")
	sim.Fail(OpAccounting, boom)

	_, err := sim.Accounting(context.Background(), Request{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, sim.Calls(OpAccounting))

	sim.Fail(OpAccounting, nil)
	_, err = sim.Accounting(context.Background(), Request{Amount: sharedDomain.MustMoney("1", "CNY")})
	assert.NoError(t, err)
}
