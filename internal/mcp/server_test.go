package mcp

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/felixgeelhaar/mcp-go/middleware"
	"github.com/felixgeelhaar/mcp-go/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/fundsaga/adapter/cli"
	"github.com/felixgeelhaar/fundsaga/pkg/config"
)

func TestServe_RejectsMissingDependencies(t *testing.T) {
	ctx := context.Background()

	assert.EqualError(t, Serve(ctx, nil, &cli.App{}, nil), "config is required")
	assert.EqualError(t, Serve(ctx, &config.Config{}, nil, nil), "CLI app is required")
	assert.ErrorContains(t, Serve(ctx, &config.Config{AppEnv: "production"}, &cli.App{}, nil), "MCP_AUTH_TOKEN")
}

func TestFieldsToArgs(t *testing.T) {
	args := fieldsToArgs([]middleware.Field{
		{Key: "tool", Value: "saga.subscribe"},
		{Key: "duration_ms", Value: 12},
	})

	assert.Equal(t, []any{"tool", "saga.subscribe", "duration_ms", 12}, args)
}

func TestNewServer_RegistersSagaTools(t *testing.T) {
	srv, err := newServer(&cli.App{})
	require.NoError(t, err)

	tc := testutil.NewTestClient(t, srv)
	defer tc.Close()

	tools, err := tc.ListTools()
	require.NoError(t, err)
	assert.NotEmpty(t, tools)
}

func TestMiddlewareStack_AddsAuthWhenTokenSet(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	open := middlewareStack("", quiet)
	secured := middlewareStack("s3cret", quiet)

	assert.Len(t, secured, len(open)+1)
}
