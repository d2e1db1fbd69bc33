package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Falco0906/syncstream/internal/app"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [room-id]",
		Short: "Join a room from the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			client := cfg.Client
			if len(args) == 1 {
				client.RoomID = args[0]
			}
			if client.ServerURL == "" {
				return errors.New("watch requires --server-url or SYNCSTREAM_CLIENT_SERVER_URL")
			}
			return app.RunClient(client)
		},
	}
	addClientFlags(cmd)
	return cmd
}

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("server-url", "ws://localhost:3000/ws", "server websocket URL")
	cmd.Flags().String("user", "", "display name")
}
