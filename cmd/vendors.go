package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/KaramelBytes/tablechat/internal/ai"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var vendorsYAML bool

var vendorsCmd = &cobra.Command{
	Use:   "vendors",
	Short: "List vendor presets and their models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printVendors(cmd.OutOrStdout(), vendorsYAML)
	},
}

func printVendors(w io.Writer, asYAML bool) error {
	vs := ai.Vendors()
	if asYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(vs); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	for _, v := range vs {
		stream := "blocking"
		if v.Stream {
			stream = "stream"
		}
		fmt.Fprintf(w, "%-11s %-16s %-8s %s\n", v.ID, v.Name, stream, strings.Join(v.Models, ", "))
		if v.APIKeyEnv != "" {
			fmt.Fprintf(w, "%-11s key: $%s\n", "", v.APIKeyEnv)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(vendorsCmd)
	vendorsCmd.Flags().BoolVar(&vendorsYAML, "yaml", false, "print presets as YAML")
}
