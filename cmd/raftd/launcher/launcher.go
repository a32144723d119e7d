// Package launcher runs a cluster of in-process members behind per-member
// HTTP status endpoints.
package launcher

import (
	"context"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/influxdata/coreraft/cluster"
	raftHttp "github.com/influxdata/coreraft/http"
	"github.com/influxdata/coreraft/kit/cli"
	"github.com/influxdata/coreraft/kit/prom"
	"github.com/influxdata/coreraft/kit/tracing"
	"github.com/influxdata/coreraft/logger"
	itoml "github.com/influxdata/coreraft/toml"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	jaegerconfig "github.com/uber/jaeger-client-go/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const (
	// JaegerTracing enables tracing via the Jaeger client library.
	JaegerTracing = "jaeger"

	shutdownTimeout = 5 * time.Second
)

// NewCommand returns the raftd command for l.
func NewCommand(v *viper.Viper, l *Launcher) (*cobra.Command, error) {
	cmd, err := cli.NewCommand(v, &cli.Program{
		Name: "raftd",
		Opts: l.opts(),
	})
	if err != nil {
		return nil, err
	}
	cmd.Short = "Run a replicated log cluster in one process"
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return l.Run(cmd.Context())
	}
	return cmd, nil
}

// Launcher assembles a cluster, its HTTP servers and a client workload.
type Launcher struct {
	configPath      string
	members         int
	dataDir         string
	httpBindAddress string
	logLevel        zapcore.Level
	logFormat       string
	tracingType     string
	electionTimeout time.Duration
	preVote         bool
	writeInterval   time.Duration

	log                *zap.Logger
	reg                *prom.Registry
	cluster            *cluster.Cluster
	servers            []*nethttp.Server
	listeners          []net.Listener
	jaegerTracerCloser io.Closer

	mu    sync.Mutex
	ready chan struct{}
}

// NewLauncher returns a launcher with default options.
func NewLauncher() *Launcher {
	return &Launcher{ready: make(chan struct{})}
}

func (l *Launcher) opts() []cli.Opt {
	return []cli.Opt{
		{
			DestP: &l.configPath,
			Flag:  "cluster-config",
			Desc:  "path to a TOML file configuring every member",
		},
		{
			DestP:   &l.members,
			Flag:    "members",
			Default: 3,
			Desc:    "number of members in the cluster",
		},
		{
			DestP: &l.dataDir,
			Flag:  "data-dir",
			Desc:  "directory holding the members' databases; members keep state in memory if empty",
		},
		{
			DestP:   &l.httpBindAddress,
			Flag:    "http-bind-address",
			Default: "127.0.0.1:7474",
			Desc:    "bind address of the first member's status server; later members use the following ports",
		},
		{
			DestP:   &l.logLevel,
			Flag:    "log-level",
			Default: zapcore.InfoLevel,
			Desc:    "supported log levels are debug, info, warn and error",
		},
		{
			DestP:   &l.logFormat,
			Flag:    "log-format",
			Default: "auto",
			Desc:    "supported log formats are auto, logfmt and json",
		},
		{
			DestP: &l.tracingType,
			Flag:  "tracing-type",
			Desc:  fmt.Sprintf("supported tracing types are %s", JaegerTracing),
		},
		{
			DestP: &l.electionTimeout,
			Flag:  "election-timeout",
			Desc:  "overrides the configured election timeout; the heartbeat interval becomes a tenth of it",
		},
		{
			DestP: &l.preVote,
			Flag:  "pre-vote",
			Desc:  "enable the pre-vote phase",
		},
		{
			DestP:   &l.writeInterval,
			Flag:    "write-interval",
			Default: time.Second,
			Desc:    "time between two writes of the client workload; zero disables it",
		},
	}
}

// Ready is closed once every status server listens.
func (l *Launcher) Ready() <-chan struct{} { return l.ready }

// Addrs returns the addresses of the status servers in member order.
func (l *Launcher) Addrs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	addrs := make([]string, len(l.listeners))
	for i, ln := range l.listeners {
		addrs[i] = ln.Addr().String()
	}
	return addrs
}

// Cluster returns the running cluster, or nil before Run opens it.
func (l *Launcher) Cluster() *cluster.Cluster {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cluster
}

// Run opens the cluster and serves until ctx is done.
func (l *Launcher) Run(ctx context.Context) error {
	if err := l.open(ctx); err != nil {
		l.shutdown()
		return err
	}
	defer l.shutdown()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.cluster.Run(ctx) })
	for i := range l.servers {
		srv, ln := l.servers[i], l.listeners[i]
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && err != nethttp.ErrServerClosed {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range l.servers {
			if err := srv.Shutdown(sctx); err != nil {
				l.log.Warn("Failed to shut down status server", zap.String("addr", srv.Addr), zap.Error(err))
			}
		}
		return nil
	})
	if l.writeInterval > 0 {
		w := newWorkload(l.log, l.cluster, l.writeInterval)
		l.reg.MustRegister(w)
		g.Go(func() error { return w.run(ctx) })
	}
	close(l.ready)

	l.log.Info("Listening", zap.Strings("addrs", l.Addrs()))
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func (l *Launcher) open(ctx context.Context) error {
	var err error
	if l.log, err = (&logger.Config{Format: l.logFormat, Level: l.logLevel}).New(os.Stdout); err != nil {
		return err
	}

	span, ctx := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	switch l.tracingType {
	case JaegerTracing:
		l.log.Info("Tracing via Jaeger")
		cfg, err := jaegerconfig.FromEnv()
		if err != nil {
			l.log.Error("Failed to get Jaeger client config from environment variables", zap.Error(err))
			break
		}
		tracer, closer, err := cfg.NewTracer()
		if err != nil {
			l.log.Error("Failed to instantiate Jaeger tracer", zap.Error(err))
			break
		}
		opentracing.SetGlobalTracer(tracer)
		l.jaegerTracerCloser = closer
	}

	config, err := l.loadConfig()
	if err != nil {
		return err
	}

	cl, err := cluster.New(l.log, l.members, config)
	if err != nil {
		return err
	}
	if err := cl.Open(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	l.cluster = cl
	l.mu.Unlock()

	l.reg = prom.NewRegistry(l.log.With(zap.String("service", "prom_registry")))
	l.reg.MustRegister(cl)

	return l.listen()
}

// loadConfig reads the cluster config file, if any, and applies the
// command line overrides.
func (l *Launcher) loadConfig() (cluster.Config, error) {
	config := cluster.NewConfig()
	if l.configPath != "" {
		if _, err := toml.DecodeFile(l.configPath, &config); err != nil {
			return config, fmt.Errorf("reading cluster config %q: %w", l.configPath, err)
		}
	}
	if l.dataDir != "" {
		config.Dir = l.dataDir
	}
	if l.electionTimeout > 0 {
		config.Raft.ElectionTimeout = itoml.Duration(l.electionTimeout)
		config.Raft.HeartbeatInterval = itoml.Duration(l.electionTimeout / 10)
	}
	if l.preVote {
		config.Raft.PreVote = true
	}
	return config, nil
}

// listen opens one status server per member. A zero port gives every
// member an ephemeral port.
func (l *Launcher) listen() error {
	host, portStr, err := net.SplitHostPort(l.httpBindAddress)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid http-bind-address port %q: %w", portStr, err)
	}

	for i, m := range l.cluster.Members() {
		p := port
		if p != 0 {
			p += i
		}
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err != nil {
			return err
		}

		log := l.log.With(logger.Member(m.ID))
		h := raftHttp.NewStatusHandler(log, m, l.reg.HTTPHandler(), prometheus.Labels{"member": m.ID.String()})
		l.reg.MustRegister(h)

		l.mu.Lock()
		l.listeners = append(l.listeners, ln)
		l.servers = append(l.servers, &nethttp.Server{
			Addr:     ln.Addr().String(),
			Handler:  h,
			ErrorLog: zap.NewStdLog(log),
		})
		l.mu.Unlock()
	}
	return nil
}

func (l *Launcher) shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ln := range l.listeners {
		_ = ln.Close()
	}
	if l.cluster != nil {
		if err := l.cluster.Close(); err != nil {
			l.log.Warn("Failed to close cluster", zap.Error(err))
		}
	}
	if l.jaegerTracerCloser != nil {
		if err := l.jaegerTracerCloser.Close(); err != nil {
			l.log.Warn("Failed to close Jaeger tracer", zap.Error(err))
		}
	}
	if l.log != nil {
		_ = l.log.Sync()
	}
}
