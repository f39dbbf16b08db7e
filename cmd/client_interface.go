package cmd

import (
	"context"
	"time"

	"firestige.xyz/scanguard/internal/command"
	"firestige.xyz/scanguard/internal/engine"
)

// ClientInterface is the daemon control API used by the client commands.
// *command.UDSClient implements it.
type ClientInterface interface {
	DaemonStatus(ctx context.Context) (*command.DaemonStatus, error)
	EngineStats(ctx context.Context) (*engine.Stats, error)
	ClassifierRules(ctx context.Context) (*command.RulesResult, error)
	Shutdown(ctx context.Context) error
	Reload(ctx context.Context) error
}

var newClient = func() (ClientInterface, error) {
	path, err := resolveSocket()
	if err != nil {
		return nil, err
	}
	return command.NewUDSClient(path, 10*time.Second), nil
}

// withClient runs fn against a client for the daemon control socket.
func withClient(cmd interface{ Context() context.Context }, fn func(ctx context.Context, c ClientInterface) error) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, c)
}
