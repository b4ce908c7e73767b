package main

import (
	"bufio"
	"context"
	"errors"
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
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/socket-client/internal/config"
	"github.com/rickgao/socket-client/internal/connection"
	"github.com/rickgao/socket-client/internal/database"
	"github.com/rickgao/socket-client/internal/journal"
	"github.com/rickgao/socket-client/internal/metrics"
	"github.com/rickgao/socket-client/internal/version"
)

const shutdownTimeout = 10 * time.Second

func streamCmd(opts *rootOptions) *cobra.Command {
	var sendStdin bool

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Connect and print inbound messages until interrupted",
		Long: `Connect to the configured endpoint and print every inbound message.

With --send-stdin each line read from standard input is sent as a text
frame, and end of input closes the connection normally.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream(cmd.Context(), opts, sendStdin, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&sendStdin, "send-stdin", false, "send each stdin line as a text message")
	return cmd
}

func runStream(ctx context.Context, opts *rootOptions, sendStdin bool, in io.Reader, out io.Writer) error {
	cfg, err := config.LoadAndValidate(opts.configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting wsclient", append(version.LogAttrs(), "config", opts.configPath)...)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	connCfg := connectionConfig(cfg.Client)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector = metrics.NewCollector(reg)
		connCfg.Observer = collector
		serveMetrics(gctx, g, cfg.Metrics, reg, logger)
	}

	conn := connection.New(cfg.Client.Address, connCfg, logger)
	(&printer{out: out}).attach(conn)

	if cfg.Journal.Enabled {
		rec, closeJournal, err := startJournal(gctx, cfg.Journal, conn, collector, logger)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		defer closeJournal()
		rec.Attach(conn)
	}

	err = session(gctx, conn, cfg.Client, sendStdin, in, logger)
	cancel()
	if werr := g.Wait(); err == nil {
		err = werr
	}
	return err
}

// connectionConfig maps the client section of the config file onto a
// connection config.
func connectionConfig(c config.ClientConfig) connection.Config {
	cfg := connection.DefaultConfig()
	cfg.Authorization = c.Authorization
	cfg.Origin = c.Origin
	cfg.Protocol = c.Protocol
	if c.HandshakeTimeout > 0 {
		cfg.HandshakeTimeout = c.HandshakeTimeout
	}
	if c.WriteTimeout > 0 {
		cfg.WriteTimeout = c.WriteTimeout
	}
	if c.CloseTimeout > 0 {
		cfg.CloseTimeout = c.CloseTimeout
	}
	cfg.ReadLimit = c.ReadLimit
	return cfg
}

// session connects, optionally pumps stdin, and returns when the connection
// ends or ctx is canceled.
func session(ctx context.Context, conn *connection.Conn, c config.ClientConfig, sendStdin bool, in io.Reader, logger *slog.Logger) error {
	ended := make(chan error, 1)
	endWith := func(err error) {
		select {
		case ended <- err:
		default:
		}
	}
	closeL := conn.OnClose(func(connection.CloseEvent) { endWith(nil) })
	defer conn.RemoveCloseListener(closeL)

	connectCtx, cancel := context.WithTimeout(ctx, c.ConnectTimeout)
	err := conn.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("connect %s: %w", conn.Address(), err)
	}

	// Transport errors after the handshake end the session.
	errL := conn.OnError(func(err error) {
		var te *connection.TransportError
		if errors.As(err, &te) {
			endWith(err)
		}
	})
	defer conn.RemoveErrorListener(errL)

	if sendStdin {
		// Not tied to ctx: a blocked stdin read cannot be interrupted.
		go pumpLines(conn, in, logger)
	}

	select {
	case err := <-ended:
		return err
	case <-ctx.Done():
	}

	logger.Info("closing connection")
	if err := conn.Close(connection.CloseNormalClosure, "shutdown"); err != nil {
		logger.Warn("close failed", "error", err)
	}

	select {
	case err := <-ended:
		return err
	case <-time.After(connectionConfig(c).CloseTimeout + time.Second):
		logger.Warn("close handshake did not complete")
		return nil
	}
}

// pumpLines sends each line of in as a text frame, then closes conn.
func pumpLines(conn *connection.Conn, in io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := conn.Send(scanner.Text()); err != nil {
			logger.Warn("send failed", "error", err)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("read stdin", "error", err)
	}
	if err := conn.Close(connection.CloseNormalClosure, "end of input"); err != nil {
		logger.Warn("close failed", "error", err)
	}
}

// serveMetrics runs the metrics HTTP server in g until ctx is done.
func serveMetrics(ctx context.Context, g *errgroup.Group, mc config.MetricsConfig, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(mc.Path, metrics.Handler(reg))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", mc.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("starting metrics server", "port", mc.Port, "path", mc.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startJournal connects to the database and starts a recorder. The returned
// func stops the recorder and closes the pool.
func startJournal(ctx context.Context, jc config.JournalConfig, conn *connection.Conn, collector *metrics.Collector, logger *slog.Logger) (*journal.Recorder, func(), error) {
	logger.Info("connecting to database",
		"host", jc.Database.Host,
		"port", jc.Database.Port,
		"database", jc.Database.Name,
	)

	pool, err := database.Connect(ctx, jc.Database)
	if err != nil {
		return nil, nil, err
	}

	store, err := journal.NewPostgresStore(pool, jc.Table)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	var jm journal.Metrics
	if collector != nil {
		jm = collector
	}

	rec := journal.NewRecorder(journal.Config{
		Source:        conn.Address(),
		BatchSize:     jc.BatchSize,
		FlushInterval: jc.FlushInterval,
		BufferSize:    jc.BufferSize,
	}, store, jm, logger)

	// The recorder outlives ctx so Stop can flush after shutdown begins.
	if err := rec.Start(context.WithoutCancel(ctx)); err != nil {
		pool.Close()
		return nil, nil, err
	}

	return rec, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = rec.Stop(stopCtx)
		pool.Close()
	}, nil
}
