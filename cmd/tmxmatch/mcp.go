package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/standardbeagle/tmxmatch/internal/debug"
	"github.com/standardbeagle/tmxmatch/internal/mcp"
	"github.com/standardbeagle/tmxmatch/internal/project"
)

const shutdownTimeout = 5 * time.Second

func mcpCommand(c *cli.Context) error {
	// stdout carries the protocol
	debug.SetMCPMode(true)
	logger := debug.Logger("main")

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return debug.Fatal("main", "failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	session, err := project.Open(ctx, cfg)
	if err != nil {
		return debug.Fatal("main", "failed to open project: %v", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("closing session", zap.Error(err))
		}
	}()

	mcpServer, err := mcp.NewServer(session)
	if err != nil {
		return debug.Fatal("main", "failed to create MCP server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- mcpServer.Start(ctx)
	}()

	var runErr error
	select {
	case runErr = <-errChan:
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		timer := time.NewTimer(2 * time.Second)
		defer timer.Stop()
		select {
		case runErr = <-errChan:
		case <-timer.C:
			logger.Warn("graceful shutdown timeout, closing stdin")
			os.Stdin.Close()
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := mcpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	if runErr != nil && ctx.Err() == nil {
		return debug.Fatal("main", "MCP server error: %v", runErr)
	}
	return nil
}
