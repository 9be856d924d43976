package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/voiden-dev/scriptrunner/internal/script/executors"
)

// NewValidateCmd creates a new validate command
func NewValidateCmd() *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "validate [script files]",
		Short: "Check script syntax without executing",
		Long: `Check script syntax without executing anything.
Only JavaScript can be checked statically; Python files are skipped.

Examples:
  voiden-scripts validate hook.js
  voiden-scripts validate pre.js post.js`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(args, language)
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Script language; inferred from the file extension when empty")
	return cmd
}

func runValidate(files []string, language string) error {
	invalid := 0
	for _, file := range files {
		lang, err := resolveLanguage(file, language)
		if err != nil {
			Logger.Error("cannot validate file", "file", file, "error", err)
			invalid++
			continue
		}
		if lang != "javascript" {
			Logger.Info("skipping non-javascript file", "file", file)
			continue
		}
		body, err := os.ReadFile(file)
		if err != nil {
			Logger.Error("failed to read file", "file", file, "error", err)
			invalid++
			continue
		}
		if err := executors.ValidateJavaScript(string(body)); err != nil {
			fmt.Printf("%s %s: %v\n", color.RedString("✗"), file, err)
			invalid++
			continue
		}
		fmt.Printf("%s %s\n", color.GreenString("✓"), file)
	}
	if invalid > 0 {
		return fmt.Errorf("validation failed for %d file(s)", invalid)
	}
	return nil
}
