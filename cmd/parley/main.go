package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "parley is a multi-dialogue chat session with an AI nutrition coach",
	Long: `parley manages multiple named chat dialogues against a reply generator
(a built-in demo coach, or OpenAI). Dialogues can be created, renamed, pinned
and deleted; user messages can be edited in place to regenerate the reply.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(cmd); err != nil {
			return err
		}
		return initLogging()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func initConfig(cmd *cobra.Command) error {
	viper.SetEnvPrefix("PARLEY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "could not read config file %s", configFile)
		}
	} else {
		viper.SetConfigName("parley")
		viper.AddConfigPath("$HOME/.parley")
		viper.AddConfigPath(".")
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return errors.Wrap(err, "could not read config file")
			}
		}
	}

	return nil
}

func initLogging() error {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return errors.Wrapf(err, "invalid log level %s", viper.GetString("log-level"))
	}
	zerolog.SetGlobalLevel(level)

	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	return nil
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: parley.yaml in . or ~/.parley)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.Flags().String("generator", "coach", "reply generator to use (coach, openai)")
	rootCmd.Flags().Duration("coach-delay", 0, "artificial thinking delay of the demo coach (default 2s)")
	rootCmd.Flags().String("openai-api-key", "", "OpenAI API key (or PARLEY_OPENAI_API_KEY)")
	rootCmd.Flags().String("openai-model", "", "OpenAI model to use")
	rootCmd.Flags().String("greeting", "", "override the greeting new dialogues are seeded with")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
