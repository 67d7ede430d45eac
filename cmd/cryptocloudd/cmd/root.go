// Package cmd wires the cryptocloudd command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cs2hvh/cryptocloud/internal/config"
)

var (
	cfgFile string
	conf    *config.Config
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cryptocloudd",
		Short: "Cryptocloud - VM provisioning service for Proxmox VE",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.PersistentFlags().String("db-path", "", "sqlite database path")
	cmd.PersistentFlags().String("listen", "", "listen address")

	_ = viper.BindPFlag("db_path", cmd.PersistentFlags().Lookup("db-path"))
	_ = viper.BindPFlag("listen", cmd.PersistentFlags().Lookup("listen"))

	viper.SetEnvPrefix("CRYPTOCLOUD")
	viper.AutomaticEnv()

	cmd.AddCommand(
		serveCmd,
		versionCmd,
	)

	return cmd
}()

func initConfig() error {
	conf = config.NewConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	_ = viper.ReadInConfig() // optional; missing file is OK

	if err := viper.Unmarshal(conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	return nil
}

// Execute is the main entry point called from main.go.
func Execute() error {
	return rootCmd.Execute()
}
