package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SujithChristopher/gdserial"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gdserial",
	Short: "Thread-safe serial port communication tool",
	Long: `gdserial is a CLI for the gdserial serial communication library.

It can enumerate serial ports, send data to a port and monitor multiple
ports at once through a live terminal interface backed by the library's
multi-port manager.

Defaults for baud rate and timeout can be set in ~/.gdserial.yaml or via
GDSERIAL_* environment variables.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.WarnLevel
		if viper.GetBool("verbose") {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().Timestamp().Logger()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gdserial.yaml)")
	rootCmd.PersistentFlags().IntP("baud", "b", 9600, "baud rate")
	rootCmd.PersistentFlags().DurationP("timeout", "t", time.Second, "read/write timeout")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	viper.BindPFlag("baud", rootCmd.PersistentFlags().Lookup("baud"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in the config file and environment variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".gdserial")
		}
	}

	viper.SetEnvPrefix("GDSERIAL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debug().Str("file", viper.ConfigFileUsed()).Msg("using config file")
	}
}

// portOptions builds library options from the resolved configuration
func portOptions() ([]gdserial.Option, error) {
	opts := []gdserial.Option{
		gdserial.WithBaudRate(viper.GetInt("baud")),
		gdserial.WithReadTimeout(viper.GetDuration("timeout")),
	}

	// probe the options against a scratch config so flag errors surface
	// before any port is touched
	cfg := gdserial.DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	return opts, nil
}
