// Package cmd provides the command-line interface for taglet with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports configuration through several sources with clear precedence:
//	1. Command-line flags (--config, --port, etc.) - highest priority
//	2. TAGLET_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (TAGLET_TEMPLATES_DIR, etc.)
//	4. Configuration files (.taglet.yml)
//	5. A .env file in the working directory - lowest priority
//
// Environment Variables:
//
//	TAGLET_CONFIG_FILE: Path to custom configuration file
//	TAGLET_TEMPLATES_DIR: Override the template directory
//	TAGLET_DEVELOPMENT_PORT: Override the development server port
//	And the rest following the TAGLET_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/taglet/internal/config"
	"github.com/conneroisu/taglet/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "taglet",
	Short: "A compiler for HTML tag templates",
	Long: `Taglet compiles a directory of HTML tag templates into Go render
functions, or serves them from memory with hot reload while you edit.

Quick Start:
  taglet generate                 Compile templates into Go code
  taglet check                    Report diagnostics without writing files
  taglet list                     List every tag and its parameters
  taglet serve                    Start the development server

Command Aliases (for faster typing):
  generate (g, build), serve (s), list (l)`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .taglet.yml, can also use TAGLET_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringP("templates", "t", "", "template directory (default ./templates)")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("templates.dir", rootCmd.PersistentFlags().Lookup("templates"))
}

// initConfig initializes the configuration system with support for multiple config sources.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. TAGLET_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .taglet.yml in current directory
//
// A .env file, when present, is loaded first so its TAGLET_ variables take
// part in the environment binding. Variables already set in the process
// environment win.
func initConfig() {
	// Missing .env files are the common case
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".taglet")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads the configuration and builds the logger it describes.
func loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	return cfg, logger, nil
}
