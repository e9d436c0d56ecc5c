package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clarabennett2626/logrecorder/internal/config"
	"github.com/clarabennett2626/logrecorder/internal/diag"
)

var rootCmd = &cobra.Command{
	Use:   "logrecorder",
	Short: "Capture a bounded window of log output",
	Long: `logrecorder attaches to a log stream, keeps only the most recent records
within a size or count limit, and renders what it kept when the capture ends.

Records are read from files (followed across rotation) or from stdin.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/logrecorder/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "diagnostic log level (trace, debug, info, warn, error, disabled)")
}

func initConfig() {
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("LOGRECORDER")
	// e.g. LOGRECORDER_CAPTURE_LIMIT for capture.limit
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig validates the merged configuration and installs the diagnostic
// logger on the command's stderr.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	diag.Set(diag.New(cfg.Log.Level, cmd.ErrOrStderr()))
	return cfg, nil
}
