package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage bookrec configuration",
	Long:  `Commands for creating and validating bookrec.yaml configuration files.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a bookrec.yaml template",
	Long: `Creates a bookrec.yaml configuration file with all available options
and their default values.

Example:
  bookrec config init
  bookrec config init --output /etc/bookrec/bookrec.yaml`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a bookrec.yaml configuration file",
	Long: `Reads and validates a configuration file, reporting any errors.

Example:
  bookrec config validate
  bookrec config validate bookrec.yaml
  bookrec config validate --config /etc/bookrec/bookrec.yaml`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringP("output", "o", "bookrec.yaml", "output file path")
	configInitCmd.Flags().Bool("stdout", false, "print to stdout instead of file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	toStdout, _ := cmd.Flags().GetBool("stdout")
	output, _ := cmd.Flags().GetString("output")

	template := config.GenerateTemplate()

	if toStdout {
		fmt.Print(template)
		return nil
	}

	// Check if file already exists
	if _, err := os.Stat(output); err == nil {
		return fmt.Errorf("file %s already exists (use --stdout to print to stdout)", output)
	}

	if err := os.WriteFile(output, []byte(template), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Created %s\n", output)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfgPath, err := resolveConfigPath(args)
	if err != nil {
		return err
	}

	if _, err := config.LoadFromFile(cfgPath); err != nil {
		return fmt.Errorf("validation failed for %s: %w", cfgPath, err)
	}

	fmt.Fprintf(os.Stderr, "Config file %s is valid\n", cfgPath)
	return nil
}

// resolveConfigPath picks the explicit argument, the global --config
// flag, or the first config file found in the default locations.
func resolveConfigPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cfgFile != "" {
		return cfgFile, nil
	}

	candidates := []string{"bookrec.yaml", ".bookrec.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, home+"/.bookrec.yaml", home+"/bookrec.yaml")
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no config file found (try: bookrec config validate <file>)")
}
