// cmd/vmkern/main.go
//
// vmkern - interactive shell over the demand-paged memory manager.
//
// Usage:
//
//	vmkern [config.json]
//
// Without a config file the built-in defaults are used: 32 frames of
// 1024 bytes and swap held in memory. Use .help for available commands.
package main

import (
	"fmt"
	"os"

	"vmkern/internal/logging"
	"vmkern/pkg/cli"
	"vmkern/pkg/config"
	"vmkern/pkg/exefile"
	"vmkern/pkg/trace"
	"vmkern/pkg/vm"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Default()
	if len(os.Args) > 1 {
		var err error
		cfg, err = config.Load(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			return 1
		}
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		logger.Warn(err.Error())
	}

	var rec *trace.Recorder
	var observer vm.Observer
	if cfg.TracePath != "" {
		rec, err = trace.Open(cfg.TracePath, trace.Options{Logger: logger})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening trace: %v\n", err)
			return 1
		}
		defer rec.Close()
		observer = rec
	}

	m, err := vm.New(cfg.VMOptions(logger, observer))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting memory manager: %v\n", err)
		return 1
	}
	defer m.Close()

	repl := cli.NewREPL(cli.Config{
		Manager:    m,
		Trace:      rec,
		ImageCache: exefile.NewPageCache(cfg.ImageCachePages),
		StackPages: cfg.StackPages,
	}, os.Stdout, os.Stderr)
	defer repl.Close()

	repl.Run()
	return 0
}
