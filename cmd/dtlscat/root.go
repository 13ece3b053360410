// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	dtls "github.com/qwerty-iot/dtlssocket"
)

var (
	cfgFile    string
	logLevel   string
	debugLevel int

	cfg *fileConfig
)

var rootCmd = &cobra.Command{
	Use:           "dtlscat",
	Short:         "Read and write DTLS sessions from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("debug-level") {
			cfg.DebugLevel = debugLevel
		}
		dtls.SetLogLevel(cfg.LogLevel)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (.json, .yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "error, warn, info or debug")
	rootCmd.PersistentFlags().IntVar(&debugLevel, "debug-level", 0, "per session trace level, 1 info, 2 debug")
	rootCmd.AddCommand(connectCmd, serveCmd)
}
