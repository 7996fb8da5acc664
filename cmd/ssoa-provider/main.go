package main

/*
* Sample provider: serves Echo, Add, Scale and Reverse and announces them to the registry
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
	"mini-soa/middleware"
	"mini-soa/registry"
	"mini-soa/server"
)

func configFromFlags(c *cli.Context) config.Provider {
	cfg := config.DefaultProvider()
	cfg.Host = c.String("host")
	cfg.Port = c.String("port")
	cfg.AdvertiseHost = c.String("advertise-host")
	cfg.RegistryHost = c.String("registry-host")
	cfg.RegistryPort = c.String("registry-port")
	cfg.Workers = c.Int("workers")
	cfg.ReadTimeout = c.Duration("read-timeout")
	cfg.CallTimeout = c.Duration("call-timeout")
	cfg.RateLimit = c.Float64("rate-limit")
	cfg.Burst = c.Int("burst")
	cfg.Codec = c.String("codec")
	cfg.LogLevel = c.String("log-level")
	cfg.Development = c.Bool("dev")
	cfg.Etcd = c.StringSlice("etcd")
	cfg.LeaseTTL = c.Int64("lease-ttl")
	return cfg
}

// registrar combines the registry and, when configured, etcd.
func registrar(cfg config.Provider, logger *zap.Logger) (registry.Registrar, func(), error) {
	var regs registry.MultiRegistrar
	closer := func() {}
	if cfg.RegistryHost != "" {
		regs = append(regs, registry.NewClient(cfg.Registry(), 5*time.Second, logger))
	}
	if len(cfg.Etcd) > 0 {
		etcd, err := registry.NewEtcdRegistry(cfg.Etcd, 5*time.Second, cfg.LeaseTTL, logger)
		if err != nil {
			return nil, closer, err
		}
		regs = append(regs, etcd)
		closer = func() { etcd.Close() }
	}
	switch len(regs) {
	case 0:
		return nil, closer, nil
	case 1:
		return regs[0], closer, nil
	}
	return regs, closer, nil
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

	reg, closeReg, err := registrar(cfg, logger)
	if err != nil {
		return err
	}
	defer closeReg()

	ct, _ := codec.ParseCodecType(cfg.Codec)
	opts := []server.Option{
		server.WithCodec(codec.GetCodec(ct)),
		server.WithWorkers(cfg.Workers),
		server.WithReadTimeout(cfg.ReadTimeout),
		server.WithLogger(logger),
		server.WithAdvertise(cfg.Advertise()),
	}
	if reg != nil {
		opts = append(opts, server.WithRegistrar(reg))
	}
	svr := server.NewServer(opts...)
	svr.Use(middleware.LoggingMiddleware(logger))
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		svr.Use(middleware.RateLimitMiddleware(cfg.RateLimit, burst))
	}
	if cfg.CallTimeout > 0 {
		svr.Use(middleware.TimeOutMiddleware(cfg.CallTimeout))
	}
	if err := registerServices(svr); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- svr.ListenAndServe("tcp", cfg.Address()) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	return svr.Shutdown(5 * time.Second)
}

func main() {
	app := cli.NewApp()
	app.Name = "ssoa-provider"
	app.Usage = "sample SSOA provider serving Echo, Add, Scale and Reverse"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "host",
			Value:  config.DefaultProvider().Host,
			Usage:  "address to listen on",
			EnvVar: "SSOA_PROVIDER_HOST",
		},
		cli.StringFlag{
			Name:   "port, p",
			Value:  config.DefaultProviderPort,
			Usage:  "port to listen on, 0 for any",
			EnvVar: "SSOA_PROVIDER_PORT",
		},
		cli.StringFlag{
			Name:   "advertise-host",
			Usage:  "host announced to the registry (default: the listen address)",
			EnvVar: "SSOA_ADVERTISE_HOST",
		},
		cli.StringFlag{
			Name:   "registry-host",
			Value:  config.DefaultProvider().RegistryHost,
			Usage:  "registry to announce to, empty to skip",
			EnvVar: "SSOA_REGISTRY_HOST",
		},
		cli.StringFlag{
			Name:   "registry-port",
			Value:  config.DefaultRegistryPort,
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
		cli.DurationFlag{
			Name:  "call-timeout",
			Usage: "fail invocations running longer than this, 0 for no limit",
		},
		cli.Float64Flag{
			Name:  "rate-limit",
			Usage: "invocations per second, 0 for unlimited",
		},
		cli.IntFlag{
			Name:  "burst",
			Value: 1,
		},
		cli.StringFlag{
			Name:  "codec",
			Value: codec.CodecTypeYAML.String(),
			Usage: "response header encoding: yaml or json",
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
			Usage:  "etcd endpoint to announce to as well (repeatable)",
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
