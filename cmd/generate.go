// Package cmd provides the command-line interface for proteus.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	outputFile string
	force      bool
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate sample configuration files",
	Long:  `Generate sample configuration files for the proteus capture and decode service.`,
	Example: `# Generate config to stdout
	proteus generate

	# Generate config to specific file
	proteus generate --output config.yaml

	# Overwrite existing file
	proteus generate --output config.yaml --force`,
	RunE: generateConfig,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (default: stdout)")
	generateCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing file")
}

func generateConfig(cmd *cobra.Command, args []string) error {
	// Create sample configuration YAML content
	configYAML := `# Proteus Capture and Decode Service Configuration
# This is a sample configuration file with default values and examples.
# Modify the values according to your environment and requirements.

app:
  name: "proteus"
  log_level: "info"
  log_format: "json"
  shutdown_timeout: "30s"

server:
  host: "0.0.0.0"
  port: 10162
  max_handlers: 100
  read_timeout: "30s"
  buffer_size: 65536
  max_packet_size: 65536
  max_nodes: 10000
  max_depth: 32

decoder:
  expand_embedded: true
  max_depth: 64
  max_payload: 67108864

captures:
  directories:
    - "./captures"
  file_extensions:
    - ".der"
    - ".ber"
    - ".crt"
    - ".cer"
    - ".bin"
  max_file_size: 16777216
  enable_hot_reload: true
  recursive_scan: true

storage:
  database_type: "sqlite3"
  connection_string: "./proteus_records.db"
  retention_days: 30
  batch_size: 100
  flush_interval: "5s"

metrics:
  enabled: true
  listen_address: ":9090"
  metrics_path: "/metrics"
  health_path: "/health"
  ready_path: "/ready"
  update_interval: "30s"
  namespace: "proteus"
`

	// Output to file or stdout
	if outputFile == "" {
		fmt.Print(configYAML)
		return nil
	}

	// Check if file exists and force flag
	if _, err := os.Stat(outputFile); err == nil && !force {
		return fmt.Errorf("file %s already exists, use --force to overwrite", outputFile)
	}

	// Create directory if needed
	if dir := filepath.Dir(outputFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// Write to file
	if err := os.WriteFile(outputFile, []byte(configYAML), 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Printf("Configuration file generated: %s\n", outputFile)
	return nil
}
