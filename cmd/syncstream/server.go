package main

import (
	"github.com/spf13/cobra"

	"github.com/Falco0906/syncstream/internal/app"
	"github.com/Falco0906/syncstream/internal/logging"
)

func newServerCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the relay server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			log := logging.Init(logging.Config{
				Level:       cfg.Log.Level,
				Pretty:      cfg.Log.Pretty,
				ServiceName: "syncstream",
			})
			handle, err := app.RunServer(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			return handle.Wait()
		},
	}
	addServerFlags(cmd)
	return cmd
}

func addServerFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("host", "0.0.0.0", "listen host")
	flags.Int("port", 3000, "listen port (PORT is also honored)")
	flags.String("ws-path", "/ws", "websocket path")
	flags.String("public-dir", "public", "directory with the web client")
	flags.String("uploads-dir", "uploads", "directory for uploaded videos (local backend)")
	flags.String("uploads-backend", "local", "upload storage: local or s3")
	flags.String("ledger-dsn", "", "sqlite DSN for the upload ledger (default in-memory)")
}
