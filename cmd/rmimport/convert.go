package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/rmimport/internal/markup"
	"github.com/steveyegge/rmimport/internal/ui"
)

var convertCmd = &cobra.Command{
	Use:   "convert [file]",
	Short: "Convert Textile markup to Markdown",
	Long: `Convert Textile from a file, or from stdin when no file is given, with the
same rules the importer applies to descriptions and comments.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		render, _ := cmd.Flags().GetBool("render")

		in := cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0]) // #nosec G304 - user-supplied input file
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		out, err := convertText(in, render)
		if err != nil {
			return err
		}
		_, err = io.WriteString(cmd.OutOrStdout(), out)
		return err
	},
}

func init() {
	convertCmd.Flags().Bool("render", false, "Render the Markdown for the terminal")
	rootCmd.AddCommand(convertCmd)
}

func convertText(r io.Reader, render bool) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	md := markup.Convert(string(data))
	if render {
		return ui.RenderMarkdown(md), nil
	}
	return md, nil
}
