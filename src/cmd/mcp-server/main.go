// Package main provides the MCP server entry point for Jenkins conversation
// memory. It serves the memory tools over stdin/stdout; logs go to stderr.
package main

import (
	"context"
	"fmt"
	"os"

	"jenkins-memory-agent/src/config"
	"jenkins-memory-agent/src/logger"
	"jenkins-memory-agent/src/mcp"
	"jenkins-memory-agent/src/store"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.Format = cfg.LogFormat
	logCfg.File = cfg.LogFile
	log, err := logger.NewZapLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	memory, err := store.Open(context.Background(), cfg.MemoryDSN, store.Options{Logger: log})
	if err != nil {
		log.Error("Failed to open conversation store: %v", err)
		os.Exit(1)
	}
	defer memory.Close()

	// Run server over stdin/stdout (stdio transport)
	if err := mcp.NewServer(memory, log).Run(); err != nil {
		log.Error("MCP server error: %v", err)
		os.Exit(1)
	}
}
