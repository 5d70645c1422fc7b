package harness

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/YarShev/omniscidb/internal/config"
	"github.com/YarShev/omniscidb/internal/server"
)

// Process-wide state behind every fixture. The handler is constructed once
// and reused for the remainder of the process; the configuration variables
// are consulted only by that first construction. None of this is
// thread-safe: the test runner drives setup and teardown from a single
// goroutine, and that ordering is the safety contract.
var (
	handler *server.Handler

	clusterFile       string
	leafServers       []server.LeafHostInfo
	stringLeafServers []server.LeafHostInfo
	storagePath       string

	logger = log.Default()
)

// Configure records command-line-style options for the first handler
// construction. The only recognized option is --cluster, the path to a
// cluster-topology JSON file. Calling Configure after the handler exists
// has no effect on it; first construction wins.
func Configure(args []string) error {
	fs := pflag.NewFlagSet("harness", pflag.ContinueOnError)
	cluster := fs.String("cluster", "", "path to the cluster-topology JSON file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parsing harness options: %w", err)
	}

	if handler != nil {
		logger.Warn("harness already constructed; configuration ignored")
		return nil
	}
	clusterFile = *cluster
	return nil
}

// ConfigureLeaves records explicit remote-node lists for distributed-mode
// testing. Like Configure, it is a no-op once the handler exists.
func ConfigureLeaves(stringLeaves, leaves []server.LeafHostInfo) {
	if handler != nil {
		logger.Warn("harness already constructed; configuration ignored")
		return
	}
	stringLeafServers = stringLeaves
	leafServers = leaves
}

// SetStoragePath overrides the storage directory used by the first handler
// construction. By default a fresh temporary directory is created.
func SetStoragePath(path string) {
	if handler != nil {
		logger.Warn("harness already constructed; configuration ignored")
		return
	}
	storagePath = path
}

// ensureHandler constructs the process-wide handler on first use.
// Construction failure is unrecoverable for the whole run, so callers
// treat it as fatal.
func ensureHandler() (*server.Handler, error) {
	if handler != nil {
		return handler, nil
	}

	if storagePath == "" {
		dir, err := os.MkdirTemp("", "omniscidb-harness-")
		if err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
		storagePath = dir
	}

	cfg := server.DefaultConfig()
	cfg.StoragePath = storagePath
	cfg.LeafServers = leafServers
	cfg.StringLeafServers = stringLeafServers

	if clusterFile != "" {
		topo, err := config.LoadCluster(clusterFile)
		if err != nil {
			return nil, err
		}
		cfg.LeafServers = topo.LeafServers
		cfg.StringLeafServers = topo.StringLeafServers
	}

	h, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("constructing server handler: %w", err)
	}
	handler = h
	logger.Info("shared handler constructed", "storage", storagePath)
	return handler, nil
}
