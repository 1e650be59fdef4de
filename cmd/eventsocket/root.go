package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/yanun0323/eventsocket/internal/config"
)

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"endpoint":     "endpoint",
	"auth-mode":    "auth.mode",
	"api-key":      "auth.api_key",
	"token":        "auth.token",
	"metrics-addr": "metrics.addr",
	"record":       "recorder.enabled",
	"dsn":          "recorder.dsn",
}

func newRootCommand(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:   "eventsocket",
		Short: "Publish and subscribe over an AppSync Events websocket",
		Long: `eventsocket opens one websocket to an AppSync Events endpoint and
multiplexes subscriptions and publishes over it.

Configuration is read from eventsocket.yaml, .env files and EVENTSOCKET_*
environment variables. Flags take precedence.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.load(cmd.Flags())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	fs := root.PersistentFlags()
	fs.StringVar(&rt.configFile, "config", "", "config file (default is ./eventsocket.yaml)")
	fs.String("endpoint", "", "realtime endpoint, wss://<host>/event/realtime")
	fs.String("auth-mode", "", "authorization mode: none, api_key, bearer")
	fs.String("api-key", "", "API key for auth-mode api_key")
	fs.String("token", "", "token for auth-mode bearer")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	fs.Bool("record", false, "record received events to PostgreSQL")
	fs.String("dsn", "", "PostgreSQL connection string for recording")

	root.AddCommand(newSubscribeCommand(rt))
	root.AddCommand(newPublishCommand(rt))
	root.AddCommand(newHistoryCommand(rt))
	return root
}

// bindFlags binds the flags named in keys to their configuration keys. Only
// flags that were set override the configuration.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := keys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

func (rt *runtime) load(fs *pflag.FlagSet) error {
	if err := bindFlags(rt.v, fs, flagKeys); err != nil {
		return err
	}
	cfg, err := config.Load(rt.v, rt.configFile)
	if err != nil {
		return err
	}
	rt.cfg = cfg
	return nil
}
