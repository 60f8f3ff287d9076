package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pglane/pglane/lib/auth/credentials"
	"github.com/pglane/pglane/lib/bouncer"
	"github.com/pglane/pglane/lib/lane"
	"github.com/pglane/pglane/lib/lane/admin"
	"github.com/pglane/pglane/lib/lane/cluster"
	"github.com/pglane/pglane/lib/lane/config"
	"github.com/pglane/pglane/lib/lane/pool"
	"github.com/pglane/pglane/lib/lane/pool/poolers/fifo"
	"github.com/pglane/pglane/lib/lane/pool/spool"
	"github.com/pglane/pglane/lib/lane/router"
	"github.com/pglane/pglane/lib/lane/topology"
	"github.com/pglane/pglane/lib/lane/topology/pgxprobe"
	"github.com/pglane/pglane/lib/util/strutil"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:          "pglane",
	Short:        "pglane is a routing connection pooler for postgres clusters",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the version and exit",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Println(admin.Version)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "pglane.ini", "path to the config file")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "log at debug level")
	rootCmd.AddCommand(versionCmd)
}

func newLogger() (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	conf, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := topology.NewMonitor(topology.Config{
		Nodes: conf.PgLane.Nodes,
		Prober: &pgxprobe.Prober{
			User:     conf.PgLane.ProbeUser,
			Password: conf.PgLane.ProbePassword,
			Database: conf.PgLane.ProbeDatabase,
		},
		Interval:       conf.PgLane.HealthCheckInterval.Duration(),
		ProbeTimeout:   conf.PgLane.ProbeTimeout.Duration(),
		SuspectAfter:   conf.PgLane.SuspectAfter,
		UnhealthyAfter: conf.PgLane.UnhealthyAfter,
		RecoverAfter:   conf.PgLane.RecoverAfter,
		Logger:         logger.Named("topology"),
	})
	go monitor.Run(ctx)

	var sslConfig *tls.Config
	if conf.PgLane.SSLCert != "" {
		cert, err := tls.LoadX509KeyPair(conf.PgLane.SSLCert, conf.PgLane.SSLKey)
		if err != nil {
			return err
		}
		sslConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
		}
	}

	tracked := make([]strutil.CIString, 0, len(conf.PgLane.TrackParameters))
	for _, name := range conf.PgLane.TrackParameters {
		tracked = append(tracked, strutil.MakeCIString(name))
	}

	server := lane.NewServer(lane.ServerConfig{
		Listen:        conf.PgLane.Listen,
		SSLConfig:     sslConfig,
		Credentials:   conf.Credentials,
		AdminDatabase: conf.PgLane.AdminDatabase,
		Monitor:       monitor,
		Logger:        logger.Named("server"),
	})

	var clusters []*cluster.Cluster
	for name, laneConf := range conf.Lanes {
		database := laneConf.Database
		if database == "" {
			database = name
		}

		serverUser := conf.PgLane.ServerUser
		serverPassword := conf.PgLane.ServerPassword
		if serverUser == "" {
			serverUser = laneConf.User
			serverPassword = conf.Users[laneConf.User]
		}

		laneConf := laneConf
		c := cluster.NewCluster(cluster.Config{
			Monitor: monitor,
			Router: router.NewRouter(router.Config{
				Weights:      conf.PgLane.ReplicaWeight,
				MaxStaleness: conf.PgLane.TopologyMaxAge.Duration(),
			}),
			PoolConfig: func(address string) spool.Config {
				return spool.Config{
					PoolerFactory: fifo.Factory{},
					Dialer: &pool.NetDialer{
						Address:     address,
						SSLMode:     bouncer.SSLModePrefer,
						Username:    serverUser,
						Credentials: credentials.FromString(serverUser, serverPassword),
						Database:    database,
					},
					MinConnections: laneConf.MinPoolSize,
					MaxConnections: laneConf.MaxPoolSize,
					AcquireTimeout: laneConf.AcquireTimeout.Duration(),
					IdleTimeout:    conf.PgLane.ServerIdleTimeout.Duration(),
					CheckQuery:     conf.PgLane.ServerCheckQuery,
					CheckDelay:     conf.PgLane.ServerCheckDelay.Duration(),
					ResetQuery:     conf.PgLane.ServerResetQuery,
					Logger:         logger.Named("pool"),
				}
			},
			GracePeriod: conf.PgLane.FailoverGracePeriod.Duration(),
			Logger:      logger.Named("cluster"),
		})
		clusters = append(clusters, c)
		go c.Coordinator().Run(ctx)

		server.AddLane(laneConf.User, name, lane.NewLane(lane.Config{
			Mode:              laneConf.PoolMode,
			Cluster:           c,
			TrackedParameters: tracked,
			Logger:            logger.Named("lane"),
		}))
	}

	defer func() {
		for _, c := range clusters {
			c.Close()
		}
	}()

	if conf.PgLane.Metrics != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(conf.PgLane.Metrics, mux); err != nil {
				logger.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	return server.ListenAndServe(ctx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
