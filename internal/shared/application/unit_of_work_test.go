package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUnitOfWork struct {
	mock.Mock
}

func (m *mockUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	args := m.Called(ctx)
	if ctx, ok := args.Get(0).(context.Context); ok {
		return ctx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUnitOfWork) Commit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockUnitOfWork) Rollback(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type txMarker struct{}

func setup() (*mockUnitOfWork, context.Context, context.Context) {
	ctx := context.Background()
	return new(mockUnitOfWork), ctx, context.WithValue(ctx, txMarker{}, "tx")
}

func TestWithUnitOfWork_Commits(t *testing.T) {
	uow, ctx, txCtx := setup()
	uow.On("Begin", ctx).Return(txCtx, nil)
	uow.On("Commit", txCtx).Return(nil)

	var got context.Context
	err := WithUnitOfWork(ctx, uow, func(ctx context.Context) error {
		got = ctx
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, txCtx, got)
	uow.AssertExpectations(t)
	uow.AssertNotCalled(t, "Rollback", mock.Anything)
}

func TestWithUnitOfWork_RollsBackOnError(t *testing.T) {
	uow, ctx, txCtx := setup()
	uow.On("Begin", ctx).Return(txCtx, nil)
	uow.On("Rollback", txCtx).Return(nil)
	boom := errors.New("version conflict")

	err := WithUnitOfWork(ctx, uow, func(context.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
	uow.AssertExpectations(t)
	uow.AssertNotCalled(t, "Commit", mock.Anything)
}

func TestWithUnitOfWork_JoinsRollbackFailure(t *testing.T) {
	uow, ctx, txCtx := setup()
	uow.On("Begin", ctx).Return(txCtx, nil)
	rbErr := errors.New("connection lost")
	uow.On("Rollback", txCtx).Return(rbErr)
	boom := errors.New("insert failed")

	err := WithUnitOfWork(ctx, uow, func(context.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, rbErr)
}

func TestWithUnitOfWork_RollsBackAndRepanics(t *testing.T) {
	uow, ctx, txCtx := setup()
	uow.On("Begin", ctx).Return(txCtx, nil)
	uow.On("Rollback", txCtx).Return(nil)

	assert.PanicsWithValue(t, "boom", func() {
		_ = WithUnitOfWork(ctx, uow, func(context.Context) error { panic("boom") })
	})
	uow.AssertExpectations(t)
}

func TestWithUnitOfWork_BeginFailure(t *testing.T) {
	uow, ctx, _ := setup()
	beginErr := errors.New("pool exhausted")
	uow.On("Begin", ctx).Return(nil, beginErr)

	called := false
	err := WithUnitOfWork(ctx, uow, func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, beginErr)
	assert.False(t, called)
}

func TestWithUnitOfWork_CommitFailure(t *testing.T) {
	uow, ctx, txCtx := setup()
	uow.On("Begin", ctx).Return(txCtx, nil)
	commitErr := errors.New("serialization failure")
	uow.On("Commit", txCtx).Return(commitErr)

	err := WithUnitOfWork(ctx, uow, func(context.Context) error { return nil })

	assert.ErrorIs(t, err, commitErr)
}
