// Package cmd provides the command-line interface for proteus.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/geekxflood/proteus/internal/ber"
	"github.com/geekxflood/proteus/internal/types"
)

var (
	singleNode  bool
	noEmbedded  bool
	jsonOutput  bool
	decodeAll   bool
	maxDepth    int
	maxPayload  int64
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode [files...]",
	Short: "Decode BER/DER files and print their tag trees",
	Long: `Decode one or more BER/DER encoded files and print the resulting tag
trees. Reads from stdin when no file is given.`,
	Example: `# Decode a DER certificate
	proteus decode cert.der

	# Decode from stdin
	cat cert.der | proteus decode

	# Print the tree as JSON
	proteus decode --json cert.der

	# Decode only the first node header
	proteus decode --single-node cert.der

	# Decode a concatenated stream of blobs
	proteus decode --all stream.ber`,
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().BoolVar(&singleNode, "single-node", false, "Decode only the first node, without descending into children")
	decodeCmd.Flags().BoolVar(&noEmbedded, "no-embedded", false, "Do not attempt to decode BER structures embedded in bit strings")
	decodeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the tag tree as JSON")
	decodeCmd.Flags().BoolVar(&decodeAll, "all", false, "Decode all top-level structures in the input, not just the first")
	decodeCmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Maximum nesting depth (0 uses the built-in limit)")
	decodeCmd.Flags().Int64Var(&maxPayload, "max-payload", 0, "Maximum payload size in bytes (0 uses the built-in limit)")
}

func runDecode(cmd *cobra.Command, args []string) error {
	opts := ber.Options{
		SingleNode:     singleNode,
		ExpandEmbedded: !noEmbedded,
		MaxDepth:       maxDepth,
		MaxPayload:     maxPayload,
	}

	if len(args) == 0 {
		data, err := os.ReadFile("/dev/stdin")
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		return decodeOne("stdin", data, opts)
	}

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", path, err)
		}

		if len(args) > 1 {
			fmt.Printf("== %s ==\n", path)
		}

		if err := decodeOne(path, data, opts); err != nil {
			return err
		}
	}

	return nil
}

func decodeOne(name string, data []byte, opts ber.Options) error {
	var tags []*ber.Tag

	if decodeAll {
		decoded, err := ber.DecodeAll(ber.NewBytesSource(data), opts)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", name, err)
		}
		tags = decoded
	} else {
		tag, err := ber.DecodeBytes(data, opts)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", name, err)
		}
		tags = []*ber.Tag{tag}
	}

	if jsonOutput {
		summaries := make([]types.NodeSummary, 0, len(tags))
		for _, tag := range tags {
			summaries = append(summaries, types.Summarize(tag))
		}

		var out []byte
		var err error
		if len(summaries) == 1 {
			out, err = json.MarshalIndent(summaries[0], "", "  ")
		} else {
			out, err = json.MarshalIndent(summaries, "", "  ")
		}
		if err != nil {
			return fmt.Errorf("failed to marshal tag tree: %w", err)
		}

		fmt.Println(string(out))
		return nil
	}

	for _, tag := range tags {
		printTree(tag)
	}
	return nil
}

// printTree prints one tag tree with two-space indentation per level.
func printTree(root *ber.Tag) {
	root.Walk(func(tag *ber.Tag, depth int) bool {
		fmt.Printf("%s%s\n", strings.Repeat("  ", depth), tag.Describe())
		return true
	})
}
