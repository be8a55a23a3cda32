package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bookrec",
	Short: "bookrec - Semantic book recommender with emotional tone ranking",
	Long: `bookrec recommends books by meaning, not keywords: queries are embedded
and matched against a vector index of book descriptions, then filtered by
category and re-ranked by emotional tone.

Features:
  - Natural-language search over the book catalog
  - Category filtering and tone ranking (Happy, Surprising, Angry,
    Suspenseful, Sad)
  - Result caching and provider rate limiting
  - Per-user search history and favorites

Environment Variables:
  OPENAI_API_KEY      For text → embedding conversion
  PINECONE_API_KEY    For Pinecone backend
  QDRANT_URL          For Qdrant backend`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.bookrec.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")

	// Bind to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".bookrec")
	}

	// Read environment variables
	viper.SetEnvPrefix("BOOKREC")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
