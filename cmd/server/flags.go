package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/server"
)

var (
	// BinaryName - name of run application binary
	BinaryName = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))

	errHelp = errors.New("help requested")
)

// parseArgs applies command line flags and the optional positional IP and
// PORT on top of cfg, which already carries environment settings.
func parseArgs(args []string, cfg *server.Config) (*server.Config, error) {
	return parseArgsTo(args, cfg, os.Stderr)
}

func parseArgsTo(args []string, cfg *server.Config, out io.Writer) (*server.Config, error) {
	fs := flag.NewFlagSet(BinaryName, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Launch text chat relay over TCP\n\n\t%s [options] [IP] [PORT]\n\nOptions:\n\n", BinaryName)
		fs.PrintDefaults()
		fmt.Fprint(out, "\n")
	}

	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP and WebSocket listen address, empty disables it")
	fs.StringVar(&cfg.RedisURL, "redis", cfg.RedisURL, "Redis address or URL for the username store, empty keeps names in memory")
	fs.BoolVar(&cfg.RedisPurge, "redis-purge", cfg.RedisPurge, "Drop all stored usernames at startup, disable when relays share one Redis database")
	fs.StringVar(&cfg.AMQPURL, "amqp", cfg.AMQPURL, "AMQP URL for presence events, empty disables them")
	idle := int(cfg.IdleTimeout.Seconds())
	fs.IntVar(&idle, "idle-timeout", idle, "Idle duration in seconds before a client is disconnected, 0 disables it")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, errHelp
		}
		return nil, err
	}

	if idle < 0 {
		return nil, errors.New("idle-timeout value should be greater or equal 0")
	}
	cfg.IdleTimeout = time.Duration(idle) * time.Second

	positional := fs.Args()
	if len(positional) > 2 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(positional[2:], " "))
	}
	if len(positional) > 0 {
		cfg.Host = positional[0]
	}
	if len(positional) > 1 {
		port, err := strconv.ParseUint(positional[1], 10, 16)
		if err != nil || port == 0 {
			return nil, fmt.Errorf("invalid port %q", positional[1])
		}
		cfg.Port = int(port)
	}

	return cfg, nil
}
