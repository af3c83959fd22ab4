// Command dmq-client is the reference DMQ client.
//
// It connects to a DMQ server, prints every ALARM, COMMAND and DATA
// message it receives, toggles actuators 1 and 2 once per
// actuator_interval, and asks the server to start polling one second
// after connecting. It exits after run_for or on SIGINT/SIGTERM.
//
// Usage:
//
//	dmq-client [flags]
//
// Flags:
//
//	-config string         Configuration file (YAML, TOML or JSON)
//	-transport string      Transport: zmq, stream, websocket
//	-send string           Send endpoint
//	-recv string           Receive endpoint
//	-serializer string     Payload encoding: msgpack, cbor
//	-log-level string      Log level: debug, info, warn, error
//	-protocol-log string   Write a protocol capture to this file
//	-metrics-addr string   Serve Prometheus metrics on this address
//	-run-for duration      Exit after this long (0 runs until interrupted)
//	-interactive           Drive the session from a command prompt
//	-print-config          Print the effective configuration and exit
//
// Every setting can also come from the environment, e.g.
// DMQ_SEND_ENDPOINT=tcp://server:5556.
//
// Examples:
//
//	# Talk to a local reference server for 30 seconds
//	dmq-client
//
//	# Interactive session over plain TCP with a protocol capture
//	dmq-client -transport stream -interactive -protocol-log session.dlog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dmq-protocol/dmq-go/cmd/dmq-client/interactive"
	"github.com/dmq-protocol/dmq-go/internal/config"
	"github.com/dmq-protocol/dmq-go/pkg/client"
	"github.com/dmq-protocol/dmq-go/pkg/dispatch"
	"github.com/dmq-protocol/dmq-go/pkg/log"
	"github.com/dmq-protocol/dmq-go/pkg/transport"
	"github.com/dmq-protocol/dmq-go/pkg/wire"
)

// Settle delay and poll time of the start command sent after connecting.
const (
	startDelay    = time.Second
	startPollTime = 500
)

type flags struct {
	configFile  string
	interactive bool
	printConfig bool
	overrides   config.Config
}

func parseFlags(args []string) (flags, map[string]bool, error) {
	var f flags
	fs := flag.NewFlagSet("dmq-client", flag.ContinueOnError)
	fs.StringVar(&f.configFile, "config", "", "Configuration file (YAML, TOML or JSON)")
	fs.BoolVar(&f.interactive, "interactive", false, "Drive the session from a command prompt")
	fs.BoolVar(&f.printConfig, "print-config", false, "Print the effective configuration and exit")
	fs.StringVar(&f.overrides.Transport, "transport", "", "Transport: zmq, stream, websocket")
	fs.StringVar(&f.overrides.SendEndpoint, "send", "", "Send endpoint")
	fs.StringVar(&f.overrides.RecvEndpoint, "recv", "", "Receive endpoint")
	fs.StringVar(&f.overrides.Serializer, "serializer", "", "Payload encoding: msgpack, cbor")
	fs.StringVar(&f.overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.overrides.ProtocolLog, "protocol-log", "", "Write a protocol capture to this file")
	fs.StringVar(&f.overrides.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.DurationVar(&f.overrides.RunFor, "run-for", 0, "Exit after this long (0 runs until interrupted)")

	if err := fs.Parse(args); err != nil {
		return flags{}, nil, err
	}
	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set, nil
}

// applyOverrides copies explicitly set flags over cfg.
func applyOverrides(cfg *config.Config, o config.Config, set map[string]bool) {
	if set["transport"] {
		cfg.Transport = o.Transport
	}
	if set["send"] {
		cfg.SendEndpoint = o.SendEndpoint
	}
	if set["recv"] {
		cfg.RecvEndpoint = o.RecvEndpoint
	}
	if set["serializer"] {
		cfg.Serializer = o.Serializer
	}
	if set["log-level"] {
		cfg.LogLevel = o.LogLevel
	}
	if set["protocol-log"] {
		cfg.ProtocolLog = o.ProtocolLog
	}
	if set["metrics-addr"] {
		cfg.MetricsAddr = o.MetricsAddr
	}
	if set["run-for"] {
		cfg.RunFor = o.RunFor
	}
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "dmq-client: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	f, set, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(f.configFile)
	if err != nil {
		return err
	}
	applyOverrides(&cfg, f.overrides, set)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if f.printConfig {
		out, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.RunFor > 0 && !f.interactive {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunFor)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		stdout io.Writer = os.Stdout
		stderr io.Writer = os.Stderr
		con    *interactive.Console
	)
	if f.interactive {
		con, err = interactive.New()
		if err != nil {
			return err
		}
		defer con.Close()
		stdout, stderr = con.Stdout(), con.Stderr()
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	protoLog, closeProtoLog, err := protocolLogger(cfg, logger)
	if err != nil {
		return err
	}
	defer closeProtoLog()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := client.NewMetrics(promReg)
	if err != nil {
		return err
	}

	ser, err := wire.SerializerByName(cfg.Serializer)
	if err != nil {
		return err
	}
	base, err := transport.NewDialer(cfg.Transport, transport.DialOptions{
		ConnectTimeout: cfg.ConnectTimeout,
		Logger:         logger.With("component", "transport"),
	})
	if err != nil {
		return err
	}
	dialer := &transport.RetryDialer{
		Dialer:   base,
		Attempts: cfg.ConnectRetries + 1,
		Backoff:  transport.Backoff{Jitter: transport.DefaultRetryJitter},
		OnRetry: func(endpoint string, attempt int, delay time.Duration, err error) {
			logger.Warn("connect failed, retrying", "endpoint", endpoint, "attempt", attempt, "delay", delay, "error", err)
		},
	}

	reg := dispatch.NewRegistry(nil)
	if err := registerPrinters(reg, stdout); err != nil {
		return err
	}

	c, err := client.New(client.Config{
		SendEndpoint:   cfg.SendEndpoint,
		RecvEndpoint:   cfg.RecvEndpoint,
		PollInterval:   cfg.PollInterval,
		Serializer:     ser,
		Logger:         logger,
		ProtocolLogger: protoLog,
		Metrics:        metrics,
	}, dialer, reg)
	if err != nil {
		return err
	}

	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Stop(); err != nil {
			logger.Error("error stopping session", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-c.Done():
			return errors.New("session ended: receive channel failed")
		}
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, promReg, logger)
		})
	}

	if f.interactive {
		g.Go(func() error {
			con.Run(gctx, cancel, c)
			return nil
		})
	} else {
		g.Go(func() error {
			return runActuators(gctx, c, cfg.ActuatorInterval, logger)
		})
		g.Go(func() error {
			return sendStart(gctx, c, startDelay, startPollTime, logger)
		})
		if cfg.RunFor > 0 {
			logger.Info("running", "for", cfg.RunFor)
		}
	}

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

// protocolLogger builds the capture sink from cfg. At debug level the
// events are also written to logger.
func protocolLogger(cfg config.Config, logger *slog.Logger) (log.Logger, func(), error) {
	var sinks []log.Logger
	closeFn := func() {}

	if cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fl)
		closeFn = func() {
			if n := fl.Dropped(); n > 0 {
				logger.Warn("protocol log dropped events", "count", n)
			}
			fl.Close()
		}
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		sinks = append(sinks, log.NewSlogAdapter(logger))
	}

	switch len(sinks) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	default:
		return log.NewMultiLogger(sinks...), closeFn, nil
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
