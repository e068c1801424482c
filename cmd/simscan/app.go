package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"simscan/internal/devices"
	"simscan/internal/handlers"
	"simscan/internal/modemmanager"
	"simscan/internal/publish"
	"simscan/internal/sim"
	"simscan/internal/storage"
	"simscan/internal/storage/postgres"
)

// app is the wired object graph shared by every command.
type app struct {
	cfg   *config
	ports devices.Discoverer
	orch  *sim.Orchestrator
	repo  *postgres.Repository
	file  *publish.FileSink
	sinks publish.Multi

	closers []io.Closer
}

// newApp opens the credential store and the configured sinks. Without
// DATABASE_URL scans run with no credentials, so locked SIMs are skipped.
// A message sink that cannot connect is left out with a warning.
func newApp(ctx context.Context, cfg *config) (*app, error) {
	a := &app{
		cfg:   cfg,
		ports: devices.Discoverer{Glob: cfg.PortGlob},
		file:  publish.NewFileSink(cfg.Output),
	}

	var store sim.CredentialStore = storage.Credentials{}
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		a.repo = postgres.NewRepository(pool)
		store = a.repo
	} else {
		log.Println("simscan: DATABASE_URL not set, PIN locked SIMs will not be unlocked")
	}

	transport := devices.NewSerialTransport(cfg.Baud)
	log.Printf("simscan: serial ports at %d baud, records saved to %s", transport.BaudRate(), a.file.Path())
	a.orch = sim.NewOrchestrator(sim.NewScanner(transport, cfg.Timeouts), store, a.ports)

	a.sinks = publish.Multi{a.file}
	if cfg.MQTT.Broker != "" {
		if s, err := publish.NewMQTTSink(cfg.MQTT); err != nil {
			log.Printf("simscan: mqtt sink disabled: %v", err)
		} else {
			a.sinks = append(a.sinks, s)
			a.closers = append(a.closers, s)
		}
	}
	if cfg.PubSubProject != "" && cfg.PubSubTopic != "" {
		if s, err := publish.NewPubSubSink(ctx, cfg.PubSubProject, cfg.PubSubTopic); err != nil {
			log.Printf("simscan: pubsub sink disabled: %v", err)
		} else {
			a.sinks = append(a.sinks, s)
			a.closers = append(a.closers, s)
		}
	}
	if cfg.AMQPURL != "" {
		if s, err := publish.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
			log.Printf("simscan: amqp sink disabled: %v", err)
		} else {
			a.sinks = append(a.sinks, s)
			a.closers = append(a.closers, s)
		}
	}
	return a, nil
}

// requireRepo is for commands that write credentials.
func (a *app) requireRepo() (*postgres.Repository, error) {
	if a.repo == nil {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return a.repo, nil
}

// handler builds the API handler over the app's components.
func (a *app) handler() *handlers.SIMHandler {
	opts := handlers.Options{
		Scanner:      a.orch,
		Ports:        a.ports,
		Saved:        a.file,
		Sink:         a.sinks,
		ModemManager: modemmanager.NewGuard(),
	}
	// A nil *Repository must not become a non-nil interface.
	if a.repo != nil {
		opts.Credentials = a.repo
	}
	return handlers.NewSIMHandler(opts)
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.Printf("simscan: close: %v", err)
		}
	}
	if a.repo != nil {
		a.repo.Close()
	}
}

// guardModemManager warns about ports ModemManager holds, or stops it when
// asked to.
func guardModemManager(ctx context.Context, stop bool) {
	guard := modemmanager.NewGuard()
	status, err := guard.Status(ctx)
	if err != nil {
		log.Printf("modemmanager: status unavailable: %v", err)
		return
	}
	if !status.Active {
		return
	}
	if stop {
		if err := guard.Stop(ctx); err != nil {
			log.Printf("modemmanager: %v", err)
		}
		return
	}
	log.Printf("modemmanager: %s is %s and holds %d port(s) %v; replies may be corrupted (use --stop-modemmanager)",
		modemmanager.Unit, status.ActiveState, len(status.ClaimedPorts), status.ClaimedPorts)
}
