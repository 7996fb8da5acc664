package main

/*
* Service registry: answers lookups and (de)registrations from providers and clients
 */

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"mini-soa/codec"
	"mini-soa/config"
	"mini-soa/logging"
	"mini-soa/registry"
)

func configFromFlags(c *cli.Context) config.Registry {
	cfg := config.DefaultRegistry()
	cfg.Host = c.String("host")
	cfg.Port = c.String("port")
	cfg.Workers = c.Int("workers")
	cfg.ReadTimeout = c.Duration("read-timeout")
	cfg.RateLimit = c.Float64("rate-limit")
	cfg.Burst = c.Int("burst")
	cfg.Codec = c.String("codec")
	cfg.LogLevel = c.String("log-level")
	cfg.Development = c.Bool("dev")
	cfg.Etcd = c.StringSlice("etcd")
	cfg.LeaseTTL = c.Int64("lease-ttl")
	return cfg
}

func serveCommand(c *cli.Context) error {
	cfg := configFromFlags(c)
	if err := cfg.Validate(); err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ct, _ := codec.ParseCodecType(cfg.Codec)
	opts := registry.ServerOptions{
		Codec:       codec.GetCodec(ct),
		Workers:     cfg.Workers,
		ReadTimeout: cfg.ReadTimeout,
		RateLimit:   cfg.RateLimit,
		Burst:       cfg.Burst,
		Logger:      logger,
	}
	if len(cfg.Etcd) > 0 {
		etcd, err := registry.NewEtcdRegistry(cfg.Etcd, 5*time.Second, cfg.LeaseTTL, logger)
		if err != nil {
			return err
		}
		defer etcd.Close()
		opts.Mirror = etcd
		logger.Info("mirroring registrations to etcd", zap.Strings("endpoints", cfg.Etcd))
	}

	srv := registry.NewServer(registry.NewDirectory(), opts)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe("tcp", cfg.Address()) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	for _, e := range srv.Directory().Services() {
		logger.Debug("dropping entry", zap.Stringer("service", e.Signature), zap.Int("providers", len(e.Providers)))
	}
	return srv.Shutdown(5 * time.Second)
}

func main() {
	app := cli.NewApp()
	app.Name = "ssoa-registry"
	app.Usage = "service registry for SSOA providers and clients"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "host",
			Value:  config.DefaultRegistry().Host,
			Usage:  "address to listen on",
			EnvVar: "SSOA_REGISTRY_HOST",
		},
		cli.StringFlag{
			Name:   "port, p",
			Value:  config.DefaultRegistryPort,
			Usage:  "port to listen on",
			EnvVar: "SSOA_REGISTRY_PORT",
		},
		cli.IntFlag{
			Name:  "workers",
			Usage: "max concurrently served connections, 0 for unbounded",
		},
		cli.DurationFlag{
			Name:  "read-timeout",
			Usage: "give up on a request that is not received within this time, 0 to wait forever",
		},
		cli.Float64Flag{
			Name:  "rate-limit",
			Usage: "requests per second, 0 for unlimited",
		},
		cli.IntFlag{
			Name:  "burst",
			Value: 1,
			Usage: "rate limiter burst",
		},
		cli.StringFlag{
			Name:  "codec",
			Value: codec.CodecTypeYAML.String(),
			Usage: "reply encoding: yaml or json",
		},
		cli.StringFlag{
			Name:   "log-level",
			Value:  config.DefaultLogLevel,
			EnvVar: "SSOA_LOG_LEVEL",
		},
		cli.BoolFlag{
			Name:  "dev",
			Usage: "human readable logs",
		},
		cli.StringSliceFlag{
			Name:   "etcd",
			Usage:  "etcd endpoint to mirror registrations into (repeatable)",
			EnvVar: "SSOA_ETCD",
		},
		cli.Int64Flag{
			Name:  "lease-ttl",
			Value: registry.DefaultLeaseTTL,
			Usage: "etcd lease lifetime in seconds",
		},
	}
	app.Action = serveCommand
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
