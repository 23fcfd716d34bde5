package main

import (
	"context"
	"fmt"
	"os"

	"github.com/speakingcat21/filesoldier/internal/buildinfo"
	httpclient "github.com/speakingcat21/filesoldier/internal/client/client"
	"github.com/speakingcat21/filesoldier/internal/client/cli"
	"github.com/speakingcat21/filesoldier/internal/client/config"
	"github.com/speakingcat21/filesoldier/internal/flagx"
	"github.com/speakingcat21/filesoldier/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	client := httpclient.NewHTTPClient(cfg.ServerEndpointAddr, cfg.RequestTimeout)
	defer client.Close()

	app := cli.NewApp(cfg, client, logging.NewNop())

	// The config layer owns -a/-t/-c/-config; the rest belongs to the
	// subcommand.
	args := flagx.ExcludeArgs(os.Args[1:], []string{"-a", "-t", "-c", "-config"})

	if err := app.Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

}
