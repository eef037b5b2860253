package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benkokes/elite-EI65-robot-controller/component"
	"github.com/benkokes/elite-EI65-robot-controller/config"
	"github.com/benkokes/elite-EI65-robot-controller/control"
	"github.com/benkokes/elite-EI65-robot-controller/health"
	"github.com/benkokes/elite-EI65-robot-controller/input/console"
	"github.com/benkokes/elite-EI65-robot-controller/metric"
	"github.com/benkokes/elite-EI65-robot-controller/natsclient"
	"github.com/benkokes/elite-EI65-robot-controller/output/file"
	"github.com/benkokes/elite-EI65-robot-controller/output/websocket"
	"github.com/benkokes/elite-EI65-robot-controller/pkg/tlsutil"
)

// appOptions selects which long-running parts a command needs.
type appOptions struct {
	console    bool
	dispatcher bool
}

// app holds the wired components of one robotmon process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	monitor  *health.Monitor
	manager  *component.Manager

	client     *control.Client
	dispatcher *control.Dispatcher
	console    *console.Input

	nats      *natsclient.Client
	publisher *natsclient.TelemetryPublisher
	recorder  *file.Output
	web       *websocket.Output
	metrics   *metric.Server
}

func consoleConfig(cfg *config.Config) console.Config {
	s := cfg.Session
	return console.Config{
		Host:            s.Host,
		Port:            s.Port,
		CredentialsFile: s.CredentialsFile,
		Command:         s.Command,
		Rows:            s.Rows,
		Cols:            s.Cols,
		DialTimeout:     s.DialTimeout.D(),
		ReadyDelay:      s.ReadyDelay.D(),
		SettleDelay:     s.SettleDelay.D(),
		PollInterval:    s.PollInterval.D(),
		ReadChunk:       s.ReadChunk,
		KnownHostsFile:  s.KnownHostsFile,
		InsecureHostKey: s.InsecureHostKey,
		Reconnect: console.ReconnectConfig{
			MaxAttempts:  s.Reconnect.MaxAttempts,
			InitialDelay: s.Reconnect.InitialDelay.D(),
			MaxDelay:     s.Reconnect.MaxDelay.D(),
		},
	}
}

func controlConfig(cfg *config.Config) control.ClientConfig {
	cc := control.DefaultClientConfig(cfg.ControlAddr())
	cc.DialTimeout = cfg.Control.DialTimeout.D()
	cc.SettleDelay = cfg.Control.SettleDelay.D()
	cc.ReadTimeout = cfg.Control.ReadTimeout.D()
	return cc
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: metric.NewMetricsRegistry(),
		monitor:  health.NewMonitor(appName),
		manager:  component.NewManager(logger),
	}
	a.client = control.NewClient(controlConfig(cfg), logger)

	if opts.dispatcher {
		d, err := control.NewDispatcher(a.client, control.DispatcherConfig{
			Workers:   cfg.Control.Workers,
			QueueSize: cfg.Control.QueueSize,
		}, a.registry, logger)
		if err != nil {
			return nil, fmt.Errorf("create dispatcher: %w", err)
		}
		a.dispatcher = d
		a.manager.Add(d)
		a.monitor.RegisterComponent(d)
	}

	if opts.console {
		var sinks console.Sinks
		if cfg.NATS.Enabled {
			if err := a.connectNATS(ctx); err != nil {
				// Telemetry fan-out is optional; the monitor runs without it.
				logger.Warn("NATS unavailable, telemetry will not be published", "error", err)
			} else {
				sinks = append(sinks, a.publisher)
			}
		}
		if cfg.Record.Enabled {
			rec, err := file.NewOutput(file.Config{
				Path:          cfg.Record.Path,
				Append:        cfg.Record.Append,
				BufferSize:    cfg.Record.BufferSize,
				FlushInterval: cfg.Record.FlushInterval.D(),
			}, logger)
			if err != nil {
				return nil, fmt.Errorf("create telemetry recorder: %w", err)
			}
			// Added before the console so it is stopped, and flushed, after it.
			a.recorder = rec
			a.manager.Add(rec)
			a.monitor.RegisterComponent(rec)
			sinks = append(sinks, rec)
		}

		if cfg.Web.Enabled {
			web, err := a.newBroadcaster()
			if err != nil {
				return nil, err
			}
			a.web = web
			a.manager.Add(web)
			a.monitor.RegisterComponent(web)
			sinks = append(sinks, web)
		}

		var sink console.TelemetrySink
		switch len(sinks) {
		case 0:
		case 1:
			sink = sinks[0]
		default:
			sink = sinks
		}

		in, err := console.NewInput(console.InputDeps{
			Name:            "console",
			Config:          consoleConfig(cfg),
			Sink:            sink,
			MetricsRegistry: a.registry,
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create console input: %w", err)
		}
		a.console = in
		a.manager.Add(in)
		a.monitor.RegisterComponent(in)
	}

	if cfg.Metrics.Enabled {
		a.metrics = metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, a.registry, a.monitor.Check)
		tlsCfg, err := tlsutil.LoadServerConfig(cfg.Metrics.TLS)
		if err != nil {
			return nil, fmt.Errorf("metrics TLS: %w", err)
		}
		if tlsCfg != nil {
			a.metrics.SetTLSConfig(tlsCfg)
		}
	}
	return a, nil
}

func (a *app) newBroadcaster() (*websocket.Output, error) {
	wc := websocket.DefaultConfig()
	wc.Addr = a.cfg.Web.Addr
	wc.Path = a.cfg.Web.Path
	wc.ClientBuffer = a.cfg.Web.ClientBuffer
	tlsCfg, err := tlsutil.LoadServerConfig(a.cfg.Web.TLS)
	if err != nil {
		return nil, fmt.Errorf("websocket TLS: %w", err)
	}
	wc.TLS = tlsCfg

	web, err := websocket.NewOutput(wc, a.registry, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create websocket output: %w", err)
	}
	return web, nil
}

func (a *app) connectNATS(ctx context.Context) error {
	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithLogger(a.logger),
		natsclient.WithMaxReconnects(a.cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(a.cfg.NATS.ReconnectWait.D()),
	}
	if a.cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(a.cfg.NATS.Username, a.cfg.NATS.Password))
	}
	if a.cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(a.cfg.NATS.Token))
	}
	tlsCfg, err := tlsutil.LoadClientConfig(a.cfg.NATS.TLS)
	if err != nil {
		return err
	}
	if tlsCfg != nil {
		opts = append(opts, natsclient.WithTLSConfig(tlsCfg))
	}

	client, err := natsclient.NewClient(a.cfg.NATS.URLs, opts...)
	if err != nil {
		return err
	}
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(connCtx); err != nil {
		return err
	}

	a.nats = client
	a.publisher = natsclient.NewTelemetryPublisher(client, a.cfg.NATS.Subject, a.logger)
	a.monitor.Register("nats", func() health.Status {
		if client.IsHealthy() {
			return health.NewHealthy("nats", "Connected")
		}
		// Publishing is best-effort, so a lost broker only degrades.
		return health.NewDegraded("nats", "NATS "+client.Status().String())
	})
	return nil
}

func (a *app) start(ctx context.Context) error {
	if a.metrics != nil {
		if err := a.metrics.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		a.logger.Info("Metrics server started", "address", a.metrics.Address())
	}
	if err := a.manager.Start(ctx); err != nil {
		return fmt.Errorf("start components: %w", err)
	}
	return nil
}

func (a *app) stop(timeout time.Duration) error {
	err := a.manager.Stop(timeout)
	if a.nats != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if cerr := a.nats.Close(ctx); cerr != nil {
			a.logger.Warn("NATS close failed", "error", cerr)
		}
		cancel()
	}
	if a.metrics != nil {
		if merr := a.metrics.Stop(); merr != nil {
			a.logger.Warn("Metrics server stop failed", "error", merr)
		}
	}
	return err
}
