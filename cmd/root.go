// Package cmd provides the command-line interface for proteus.

package cmd

import (
	"fmt"
	"os"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/proteus/internal/app"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	version = "dev" // Will be set by build flags
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "proteus",
	Version: version,
	Short:   "ASN.1 BER/DER capture and inspection service",
	Long: `Proteus is an ASN.1 BER/DER capture and inspection service. It decodes
encoded blobs received over UDP or loaded from capture directories into tag
trees, stores the decode records, and exposes them for inspection.`,
	Example: `# Start the capture service with default config
	proteus

	# Start with specific configuration file
	proteus --config /etc/proteus/config.yaml

	# Decode a DER file and print its tag tree
	proteus decode cert.der

	# Generate sample configuration
	proteus generate --output config.yaml

	# Validate configuration
	proteus validate --config config.yaml`,
	RunE: runServer,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	manager, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	defer manager.Close()

	application, err := app.NewApplication(manager)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if err := application.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	// Run blocks until a shutdown signal arrives
	return application.Run()
}

func loadConfig() (config.Manager, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		// Try default locations
		defaultPaths := []string{
			"config.yaml",
			"config.yml",
			"/etc/proteus/config.yaml",
			"/etc/proteus/config.yml",
		}

		for _, path := range defaultPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}
	}

	// Create config manager options
	options := config.Options{
		SchemaPath: "cmd/schemas/config.cue",
		ConfigPath: configPath,
	}

	if configPath == "" {
		fmt.Println("No configuration file found, using schema defaults")
	} else {
		fmt.Printf("Loading configuration from: %s\n", configPath)
	}

	// Create config manager
	manager, err := config.NewManager(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	return manager, nil
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
}
