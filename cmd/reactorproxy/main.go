// Command reactorproxy is a thin demonstration scaffold around the
// reactor module: it loads a small YAML config, builds a pool of
// Workers sized off GOMAXPROCS, binds one reuseport Listener per
// configured address, and serves until signaled. It exists to
// exercise the cmd-level dependencies (cobra, yaml.v3, automaxprocs)
// the core package itself never needs: the core has no CLI or config
// file of its own.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/panlibin/reactor"
	"github.com/panlibin/reactor/listener"
	"github.com/panlibin/reactor/offload"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sys/unix"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "reactorproxy",
		Short: "Run a demonstration reactor worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	return cmd
}

func run(configPath string) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// automaxprocs lets GOMAXPROCS reflect a container's CPU quota
	// rather than the host's core count, so the default worker-pool
	// size below is right-sized under cgroups.
	if _, err := maxprocs.Set(maxprocs.Logger(log.Printf)); err != nil {
		log.Warn().Err(err).Msg("failed to set GOMAXPROCS")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = maxInt(1, runtime.GOMAXPROCS(0))
	}

	workers := make([]*reactor.Worker, cfg.Workers)
	for i := range workers {
		w, err := reactor.NewWorker(reactor.WithLogger(reactor.NewZerologAdapter(log)))
		if err != nil {
			return err
		}
		workers[i] = w
	}
	pool := listener.NewPool(workers)

	offloadPool, err := offload.NewPool(cfg.OffloadCapacity)
	if err != nil {
		return err
	}
	defer offloadPool.Release()

	listeners := make([]*listener.Listener, 0, len(cfg.Listeners))
	for _, addr := range cfg.Listeners {
		ln, err := listener.New("tcp", addr, pool, newAcceptHandler(log))
		if err != nil {
			return err
		}
		listeners = append(listeners, ln)

		owner := pool.Workers()[len(listeners)%len(pool.Workers())]
		if err := owner.Register(ln.PollFD(), unix.EPOLLIN, ln); err != nil {
			return err
		}
		log.Info().Str("addr", addr).Msg("listening")
	}

	pool.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	for _, ln := range listeners {
		_ = ln.Close()
	}
	pool.Shutdown()
	pool.Join()
	return nil
}

func newAcceptHandler(log zerolog.Logger) listener.AcceptFunc {
	return func(w *reactor.Worker, fd int, _ unix.Sockaddr) {
		h := &logOnlyHandler{log: log}
		conn := listener.NewConn(w, fd, h)
		if err := w.Register(fd, unix.EPOLLIN, conn); err != nil {
			log.Warn().Err(err).Msg("failed to register accepted connection")
			_ = unix.Close(fd)
		}
	}
}

// logOnlyHandler is a placeholder listener.Handler: reading and
// framing the MySQL/MariaDB wire protocol is out of scope here, so the
// demonstration scaffold only logs traffic rather than speaking it.
type logOnlyHandler struct {
	log zerolog.Logger
}

func (h *logOnlyHandler) OnData(_ *listener.Conn, data []byte) {
	h.log.Debug().Int("bytes", len(data)).Msg("received data")
}

func (h *logOnlyHandler) OnClose(_ *listener.Conn, err error) {
	if err != nil {
		h.log.Debug().Err(err).Msg("connection closed")
		return
	}
	h.log.Debug().Msg("connection closed")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
