package cmd

import (
	"fmt"
	"os"

	"hpcmarket/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "hpcctl",
	Short: "hpcctl is a command line tool for the HPC compute marketplace",
	Long: `hpcctl is the terminal client of the HPC compute marketplace.

Clients submit code together with the hardware it needs, watch providers bid
on it and accept one bid. Providers advertise their hardware, watch open jobs
matching it and bid on them. The backend decides which jobs a provider sees
and runs the accepted job.

Interactive consoles:

  Start a client console logged in as client 1:
    hpcctl client --id 1

  Start a provider console logged in as provider 3:
    hpcctl provider --id 3

One-shot commands:

  Submit a request:
    hpcctl submit --id 1 --cores 4 --ghz 2.5 --memory 4096 --file main.c

  Watch the bids of request 42:
    hpcctl bids 42 --id 1 --follow

  Accept bid 7 of request 42:
    hpcctl accept 42 7 --id 1

  List open jobs and bid on one:
    hpcctl jobs --id 3
    hpcctl bid 42 --id 3 --price 10.50

  Show recorded actions:
    hpcctl history

Configuration:
  Set the backend and other settings via flags, environment variables or a
  config file:
    HPCMARKET_URL              backend URL (default: http://localhost:8000)
    HPCMARKET_POLL_INTERVAL    poll interval of watched views (default: 5s)
    HPCMARKET_REQUEST_TIMEOUT  timeout of a single request (default: 5s)
    HPCMARKET_LEDGER_URL       Postgres DSN of the action ledger (default: in memory)
    HPCMARKET_METRICS_ADDR     Prometheus listen address (default: disabled)
    HPCMARKET_OTEL_ENDPOINT    OTLP gRPC collector (default: disabled)
    HPCMARKET_LOG_LEVEL        debug, info, warn or error (default: info)`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".hpcctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".hpcctl")
		viper.SetConfigType("yaml")
	}

	// Defaults, and environment variables that match "HPCMARKET_VARNAME"
	config.Bind(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hpcctl.yaml)")

	rootCmd.PersistentFlags().String("url", config.DefaultURL, "marketplace backend URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().Int64("id", 0, "client or provider id to log in as")
	viper.BindPFlag("id", rootCmd.PersistentFlags().Lookup("id"))
}
