package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Falco0906/syncstream/internal/app"
)

// flagKeys maps command-line flags to configuration keys. Flags a command
// does not define are skipped when binding.
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"log-pretty":      "log.pretty",
	"host":            "server.host",
	"port":            "server.port",
	"ws-path":         "server.ws_path",
	"public-dir":      "server.public_dir",
	"uploads-dir":     "uploads.dir",
	"uploads-backend": "uploads.backend",
	"ledger-dsn":      "ledger.dsn",
	"server-url":      "client.server_url",
	"user":            "client.username",
}

type rootOptions struct {
	configFile string
	envFile    string
	v          *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "syncstream",
		Short:         "Watch videos together in sync",
		Long:          "syncstream runs a co-watching relay server and a terminal client that joins its rooms.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default searches ./syncstream.yaml and ./config/syncstream.yaml)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.String("log-level", "info", "log level: trace, debug, info, warn, error, off")
	flags.Bool("log-pretty", false, "human readable console logs")

	cmd.AddCommand(
		newServerCmd(opts),
		newWatchCmd(opts),
		newLocalCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// init loads .env, the config file and the environment, then binds the
// flags of the running command over them.
func (o *rootOptions) init(cmd *cobra.Command) error {
	if err := app.LoadDotEnv(o.envFile); err != nil {
		return err
	}
	v, err := app.NewViper(o.configFile)
	if err != nil {
		return err
	}
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return bindErr
	}
	o.v = v
	return nil
}

func (o *rootOptions) config() (app.Config, error) {
	return app.Load(o.v)
}
