package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"
	"github.com/tenantdb/tenantdb/cmd/tenantd/launcher"
	"github.com/tenantdb/tenantdb/kit/cli"
)

func main() {
	l := launcher.NewLauncher()
	prog := &cli.Program{
		Name: "tenantd",
		Opts: l.Options(),
		Run: func() error {
			// exit with SIGINT and SIGTERM
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return l.Run(ctx)
		},
	}

	cmd := cli.NewCommand(viper.New(), prog)
	cmd.Short = "Start the multi-tenant backend gateway"
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
