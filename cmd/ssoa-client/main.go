package main

/*
* CLI to call SSOA services located through the registry
 */

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli"

	"mini-soa/client"
	"mini-soa/codec"
	"mini-soa/config"
	"mini-soa/logging"
	"mini-soa/message"
	"mini-soa/registry"
	"mini-soa/signature"
)

func configFromFlags(c *cli.Context) config.Client {
	cfg := config.DefaultClient()
	cfg.RegistryHost = c.GlobalString("registry-host")
	cfg.RegistryPort = c.GlobalString("registry-port")
	cfg.DialTimeout = c.GlobalDuration("dial-timeout")
	cfg.CallTimeout = c.GlobalDuration("timeout")
	cfg.Codec = c.GlobalString("codec")
	cfg.LogLevel = c.GlobalString("log-level")
	return cfg
}

func setup(c *cli.Context) (*client.Client, context.Context, context.CancelFunc, error) {
	cfg := configFromFlags(c)
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, cli.NewExitError(err.Error(), 2)
	}
	logger, err := logging.New(cfg.LogLevel, true)
	if err != nil {
		return nil, nil, nil, err
	}
	ct, _ := codec.ParseCodecType(cfg.Codec)
	cd := codec.GetCodec(ct)

	reg := registry.NewClient(cfg.Registry(), cfg.DialTimeout, logger).WithCodec(cd)
	cl := client.NewClient(reg,
		client.WithDialTimeout(cfg.DialTimeout),
		client.WithCodec(cd),
		client.WithLogger(logger),
	)

	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if cfg.CallTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
	}
	return cl, ctx, cancel, nil
}

func parseSignature(c *cli.Context) (signature.Signature, error) {
	if c.NArg() < 1 {
		return signature.Signature{}, cli.NewExitError("missing service signature", 2)
	}
	return signature.Parse(c.Args().First()), nil
}

func callCommand(c *cli.Context) error {
	sig, err := parseSignature(c)
	if err != nil {
		return err
	}
	if !sig.Valid() {
		return cli.NewExitError(Red(fmt.Sprintf("invalid service signature '%s'", sig)), 2)
	}
	args, err := parseArguments(sig, c.Args().Tail())
	if err != nil {
		return cli.NewExitError(Red(err.Error()), 2)
	}

	cl, ctx, cancel, err := setup(c)
	if err != nil {
		return err
	}
	defer cancel()

	resp, err := cl.Call(ctx, sig, args...)
	if err != nil {
		return cli.NewExitError(Red(err.Error()), 1)
	}
	if err := printResponse(os.Stdout, resp); err != nil {
		return err
	}
	if !resp.Successful() {
		return cli.NewExitError("", 1)
	}
	return nil
}

func printResponse(w io.Writer, resp *message.Response) error {
	if !resp.Successful() {
		fmt.Fprintln(w, Red(resp.Status()))
		return nil
	}
	fmt.Fprintln(w, Green(resp.Status()))
	for _, a := range resp.Arguments() {
		s, err := formatArgument(a)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s\n", Cyan(a.Type().String()), s)
	}
	return nil
}

func lookupCommand(c *cli.Context) error {
	sig, err := parseSignature(c)
	if err != nil {
		return err
	}
	cl, ctx, cancel, err := setup(c)
	if err != nil {
		return err
	}
	defer cancel()

	ep, err := cl.Lookup(ctx, sig)
	if err != nil {
		return cli.NewExitError(Red(err.Error()), 1)
	}
	fmt.Println(ep)
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "ssoa-client"
	app.Usage = "call SSOA services located through the registry"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "registry-host",
			Value:  config.DefaultClient().RegistryHost,
			EnvVar: "SSOA_REGISTRY_HOST",
		},
		cli.StringFlag{
			Name:   "registry-port",
			Value:  config.DefaultRegistryPort,
			EnvVar: "SSOA_REGISTRY_PORT",
		},
		cli.DurationFlag{
			Name:  "dial-timeout",
			Value: config.DefaultDialTimeout,
			Usage: "connection setup limit",
		},
		cli.DurationFlag{
			Name:  "timeout, t",
			Usage: "limit for the whole call, 0 for none",
		},
		cli.StringFlag{
			Name:  "codec",
			Value: codec.CodecTypeYAML.String(),
			Usage: "request header encoding: yaml or json",
		},
		cli.StringFlag{
			Name:   "log-level",
			Value:  config.DefaultClient().LogLevel,
			EnvVar: "SSOA_LOG_LEVEL",
		},
	}
	app.Commands = []cli.Command{
		cli.Command{
			Name:      "call",
			Usage:     "Call a service and print its outputs",
			ArgsUsage: "'Name(in T, ..., out T)' [input ...]  (buffer inputs are hex)",
			Action:    callCommand,
		},
		cli.Command{
			Name:      "lookup",
			Usage:     "Print the provider the registry hands out next",
			ArgsUsage: "'Name(...)' | Name",
			Action:    lookupCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(1)
	}
}
