package cmd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultServer = "http://localhost:8080"

var rootCmd = &cobra.Command{
	Use:          "registry",
	Short:        "npmstore registry CLI",
	Long:         "CLI for publishing, fetching and removing packages on an npmstore server.",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/registry/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "server URL (default: "+defaultServer+")")
	rootCmd.PersistentFlags().String("token", "", "authentication token")

	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("REGISTRY")
	viper.AutomaticEnv()
	viper.SetDefault("server", defaultServer)

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "registry")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "registry")
	}
	return ".registry"
}

// newClient builds a client from the resolved flags, env and config file.
func newClient() (*client, error) {
	token := viper.GetString("token")
	if token == "" {
		return nil, errors.New("a token is required (--token or REGISTRY_TOKEN)")
	}
	return &client{server: viper.GetString("server"), token: token}, nil
}
