// Package mcp serves the saga tools over MCP.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/middleware"

	"github.com/felixgeelhaar/fundsaga/adapter/cli"
	mcplocal "github.com/felixgeelhaar/fundsaga/adapter/mcp"
	"github.com/felixgeelhaar/fundsaga/pkg/config"
)

const (
	serverName       = "fundsaga-mcp"
	operatorIdentity = "operator"
)

// Serve exposes the saga over streamable HTTP on cfg.MCPAddr until ctx ends.
// Outside production the bearer token is optional.
func Serve(ctx context.Context, cfg *config.Config, app *cli.App, logger *slog.Logger) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if app == nil {
		return errors.New("CLI app is required")
	}
	if cfg.MCPAuthToken == "" && cfg.IsProduction() {
		return errors.New("MCP_AUTH_TOKEN is required in production")
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv, err := newServer(app)
	if err != nil {
		return err
	}

	logger.Info("mcp server listening", "addr", cfg.MCPAddr, "auth", cfg.MCPAuthToken != "")
	return mcpgo.ServeHTTPWithMiddleware(ctx, srv, cfg.MCPAddr, nil,
		mcpgo.WithMiddleware(middlewareStack(cfg.MCPAuthToken, logger)...))
}

func newServer(app *cli.App) (*mcpgo.Server, error) {
	srv := mcpgo.NewServer(mcpgo.ServerInfo{
		Name:    serverName,
		Version: cli.Version,
		Capabilities: mcpgo.Capabilities{
			Tools:     true,
			Resources: true,
			Prompts:   true,
		},
	})
	deps := mcplocal.ToolDependencies{App: app}
	return srv, errors.Join(
		mcplocal.RegisterTools(srv, deps),
		mcplocal.RegisterResources(srv, deps),
		mcplocal.RegisterPrompts(srv, deps),
	)
}

// middlewareStack puts authentication in front of the default
// recovery and logging middleware when a token is configured.
func middlewareStack(token string, logger *slog.Logger) []middleware.Middleware {
	log := slogAdapter{logger: logger}
	stack := middleware.DefaultStack(log)
	if token == "" {
		logger.Warn("MCP_AUTH_TOKEN not set, saga tools are unauthenticated")
		return stack
	}
	tokens := middleware.StaticTokens(map[string]*middleware.Identity{
		token: {ID: operatorIdentity, Name: operatorIdentity},
	})
	auth := middleware.Auth(middleware.BearerTokenAuthenticator(tokens), middleware.WithAuthLogger(log))
	return append([]middleware.Middleware{auth}, stack...)
}

// slogAdapter routes mcp-go middleware logs to slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (l slogAdapter) Debug(msg string, fields ...middleware.Field) {
	l.logger.Debug(msg, fieldsToArgs(fields)...)
}

func (l slogAdapter) Info(msg string, fields ...middleware.Field) {
	l.logger.Info(msg, fieldsToArgs(fields)...)
}

func (l slogAdapter) Warn(msg string, fields ...middleware.Field) {
	l.logger.Warn(msg, fieldsToArgs(fields)...)
}

func (l slogAdapter) Error(msg string, fields ...middleware.Field) {
	l.logger.Error(msg, fieldsToArgs(fields)...)
}

func fieldsToArgs(fields []middleware.Field) []any {
	args := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return args
}
