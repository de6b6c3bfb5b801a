package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pairflow/pairflow/internal/bubble"
	"github.com/pairflow/pairflow/internal/config"
	"github.com/pairflow/pairflow/internal/web"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Serve the read-only bubble dashboard",
	Long: `Serve a local web dashboard over the repository's bubbles: live list,
per-bubble status, transcript, and inbox. Read-only; all mutations go
through the CLI. Refreshes live as bubbles change on disk.

  pairflow ui
  pairflow ui --addr 127.0.0.1:8080`,
	Args: cobra.NoArgs,
	RunE: runUI,
}

func init() {
	uiCmd.Flags().String("addr", "", "listen address (default: ui.addr config key, 127.0.0.1:7433)")
	rootCmd.AddCommand(uiCmd)
}

func runUI(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(rootCtx)
	if err != nil {
		return err
	}

	addr := mustString(cmd.Flags(), "addr")
	if addr == "" {
		addr = config.GetString("ui.addr")
	}
	srv := web.New(eng, web.Options{
		Addr:        addr,
		BubblesRoot: bubble.BubblesDir(eng.Repo()),
		Log:         newLogger(eng.Repo()),
	})

	ctx, stop := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Dashboard on http://%s (ctrl-c to stop)\n", srv.Addr())
	return srv.Run(ctx)
}
