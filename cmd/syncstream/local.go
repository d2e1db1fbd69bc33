package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Falco0906/syncstream/internal/app"
)

func newLocalCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local [room-id]",
		Short: "Run a private server and join it from the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("host") {
				cfg.Server.Host = "127.0.0.1"
			}
			if !cmd.Flags().Changed("port") {
				cfg.Server.Port = 0
			}
			// logs would draw over the TUI
			handle, err := app.RunServer(cmd.Context(), cfg, zerolog.Nop())
			if err != nil {
				return err
			}
			defer stopServer(handle)

			if err := waitForServer(handle.Addr(), 5*time.Second); err != nil {
				return err
			}

			client := cfg.Client
			client.ServerURL = buildWebsocketURL(handle.Addr(), cfg.Server.WSPath)
			if len(args) == 1 {
				client.RoomID = args[0]
			}
			if err := app.RunClient(client); err != nil {
				return err
			}
			stopServer(handle)
			return handle.Wait()
		},
	}
	addServerFlags(cmd)
	cmd.Flags().String("user", "", "display name")
	return cmd
}

func waitForServer(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server did not become ready: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func buildWebsocketURL(addr, path string) string {
	path = app.NormalizeWSPath(path)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Sprintf("ws://%s%s", addr, path)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, port), path)
}

func stopServer(handle *app.ServerHandle) {
	if handle == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = handle.Stop(shutdownCtx)
}
