package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/presence"
	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/Tyrowin/gochat-relay/internal/username"
)

const (
	shutdownTimeout = 10 * time.Second
	dialTimeout     = 5 * time.Second
	amqpAttempts    = 5
	amqpBackoff     = 2 * time.Second
)

func main() {
	config, err := parseArgs(os.Args[1:], server.NewConfigFromEnv())
	if err != nil {
		if errors.Is(err, errHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	cfg := config.Sanitize()

	fmt.Println("Starting GoChat relay...")

	store, cleanup, err := newUsernameStore(cfg.RedisURL, cfg.RedisPurge)
	if err != nil {
		log.Fatalf("Unable to set up username store: %v", err)
	}
	defer cleanup()

	publisher, closePublisher := newPresencePublisher(cfg)
	defer closePublisher()

	hub := server.NewHub(publisher)
	relay := server.NewRelay(cfg, hub, username.NewRegistry(store))

	relayErr := make(chan error, 1)
	go func() {
		relayErr <- relay.ListenAndServe()
	}()

	var httpServer *http.Server
	httpErr := make(chan error, 1)
	if cfg.HTTPAddr != "" {
		httpServer = server.CreateServer(cfg.HTTPAddr, server.SetupRoutes(relay))
		go func() {
			httpErr <- server.StartServer(httpServer)
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case s := <-sig:
		log.Printf("Received %s, shutting down", s)
	case err := <-relayErr:
		log.Printf("Relay stopped: %v", err)
		exitCode = 1
	case err := <-httpErr:
		if err != nil {
			log.Printf("HTTP server stopped: %v", err)
			exitCode = 1
		}
	}

	if httpServer != nil {
		_ = server.ShutdownServer(httpServer, shutdownTimeout)
	}
	if err := relay.Shutdown(shutdownTimeout); err != nil {
		log.Printf("Relay shutdown incomplete: %v", err)
	}

	log.Println("Relay stopped")
	if exitCode != 0 {
		cleanup()
		closePublisher()
		os.Exit(exitCode)
	}
}

// newUsernameStore returns the Redis store when addr is set, otherwise an
// in-memory one. With purge, names left by a previous run are dropped so
// they can be reused.
func newUsernameStore(addr string, purge bool) (username.Store, func(), error) {
	if addr == "" {
		return username.NewMemoryStore(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	client, err := username.DialRedis(ctx, addr)
	if err != nil {
		return nil, nil, err
	}
	store := username.NewRedisStore(client, username.DefaultKeyPrefix)
	if purge {
		purged, err := store.Purge(ctx)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		log.Printf("Using Redis username store at %s (purged %d stale names)", addr, purged)
	} else {
		log.Printf("Using Redis username store at %s", addr)
	}

	return store, func() {
		if err := client.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
		}
	}, nil
}

// newPresencePublisher connects to RabbitMQ when configured. Presence is
// optional, so a failure only disables it.
func newPresencePublisher(cfg server.Config) (presence.Publisher, func()) {
	if cfg.AMQPURL == "" {
		return presence.Nop{}, func() {}
	}

	exchange := cfg.PresenceExchange
	if exchange == "" {
		exchange = presence.DefaultExchange
	}

	publisher, err := presence.DialAMQP(cfg.AMQPURL, exchange, amqpAttempts, amqpBackoff)
	if err != nil {
		log.Printf("Presence publishing disabled: %v", err)
		return presence.Nop{}, func() {}
	}
	log.Printf("Publishing presence events to exchange %q", exchange)

	return publisher, func() {
		if err := publisher.Close(); err != nil {
			log.Printf("Error closing presence publisher: %v", err)
		}
	}
}
