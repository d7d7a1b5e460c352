// Package cmd provides the command-line interface for proteus.

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/geekxflood/common/config"
	"github.com/spf13/cobra"
)

var (
	checkCaptures bool
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and capture directories",
	Long:  `Validate configuration files and optionally check capture directory accessibility.`,
	Example: `# Validate configuration file
	proteus validate --config config.yaml

	# Validate configuration and check capture directories
	proteus validate --config config.yaml --check-captures

	# Validate using default config locations
	proteus validate`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&checkCaptures, "check-captures", false, "Also validate capture directory accessibility")
}

func validateConfig(cmd *cobra.Command, args []string) error {
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

		if configPath == "" {
			return fmt.Errorf("no configuration file found, specify with --config or create config.yaml")
		}
	}

	fmt.Printf("Validating configuration file: %s\n", configPath)

	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("configuration file not found: %s", configPath)
	}

	// Create config manager to validate the configuration
	manager, err := config.NewManager(config.Options{
		SchemaPath: "cmd/schemas/config.cue",
		ConfigPath: configPath,
	})
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	defer manager.Close()

	// Validate the configuration
	if err := manager.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Println("✓ Configuration syntax is valid")

	// Validate capture directories if requested
	if checkCaptures {
		if err := validateCaptureDirectories(manager); err != nil {
			return fmt.Errorf("capture validation failed: %w", err)
		}
		fmt.Println("✓ Capture directories are accessible")
	}

	fmt.Println("✓ Configuration validation completed successfully")
	return nil
}

func validateCaptureDirectories(manager config.Provider) error {
	// Get capture directories from configuration
	dirs, err := manager.GetStringSlice("captures.directories")
	if err != nil || len(dirs) == 0 {
		return fmt.Errorf("captures.directories not found in configuration")
	}

	extensions := []string{".der", ".ber", ".crt", ".cer", ".bin"}
	if configured, err := manager.GetStringSlice("captures.file_extensions"); err == nil && len(configured) > 0 {
		extensions = configured
	}

	for _, captureDir := range dirs {
		// Check if capture directory exists
		if _, err := os.Stat(captureDir); os.IsNotExist(err) {
			return fmt.Errorf("capture directory does not exist: %s", captureDir)
		}

		// Check if directory is readable
		dir, err := os.Open(captureDir)
		if err != nil {
			return fmt.Errorf("cannot read capture directory: %w", err)
		}
		dir.Close()

		// Count capture files
		var captureCount int
		err = filepath.Walk(captureDir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			if info.IsDir() {
				return nil
			}

			ext := strings.ToLower(filepath.Ext(path))
			for _, validExt := range extensions {
				if ext == strings.ToLower(validExt) {
					captureCount++
					break
				}
			}

			return nil
		})

		if err != nil {
			return fmt.Errorf("error scanning capture directory: %w", err)
		}

		fmt.Printf("  Found %d capture files in %s\n", captureCount, captureDir)
	}

	return nil
}
