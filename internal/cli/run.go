package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/voiden-dev/scriptrunner/internal/collection"
	"github.com/voiden-dev/scriptrunner/internal/script"
	"github.com/voiden-dev/scriptrunner/internal/store"
)

type runFlags struct {
	language     string
	fixtureFile  string
	envFile      string
	varsFile     string
	inline       bool
	noSubprocess bool
	nodeBinary   string
	pythonBinary string
	extract      string
	jsonOut      bool
}

// fixture is the YAML shape of a request/response pair fed to a script.
// Header and param collections accept every normalizer input form.
type fixture struct {
	Request struct {
		URL         string      `yaml:"url"`
		Method      string      `yaml:"method"`
		Headers     interface{} `yaml:"headers"`
		QueryParams interface{} `yaml:"queryParams"`
		PathParams  interface{} `yaml:"pathParams"`
		Body        interface{} `yaml:"body"`
	} `yaml:"request"`
	Response *struct {
		Status     int         `yaml:"status"`
		StatusText string      `yaml:"statusText"`
		Headers    interface{} `yaml:"headers"`
		Body       interface{} `yaml:"body"`
	} `yaml:"response"`
}

// NewRunCmd creates a new run command
func NewRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [script file]",
		Short: "Run a script against a request/response fixture",
		Long: `Run a sandboxed script against a request/response fixture.

Examples:
  voiden-scripts run hook.js --request fixture.yaml
  voiden-scripts run hook.py --request fixture.yaml --env envs.yaml --vars vars.yaml
  voiden-scripts run hook.js --request fixture.yaml --extract '.modifiedVariables.userId'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.language, "language", "l", "", "Script language (javascript or python); inferred from the file extension when empty")
	cmd.Flags().StringVarP(&flags.fixtureFile, "request", "r", "", "Request/response fixture file (YAML)")
	cmd.Flags().StringVarP(&flags.envFile, "env", "e", "", "Environment definitions file (YAML)")
	cmd.Flags().StringVar(&flags.varsFile, "vars", "", "Persistent variable file (YAML); modified variables are written back")
	cmd.Flags().BoolVar(&flags.inline, "inline", false, "Run JavaScript inline with no isolation")
	cmd.Flags().BoolVar(&flags.noSubprocess, "no-subprocess", false, "Skip the Node subprocess path for JavaScript")
	cmd.Flags().StringVar(&flags.nodeBinary, "node", "", "Node binary to use for the subprocess path")
	cmd.Flags().StringVar(&flags.pythonBinary, "python", "", "Python binary to use")
	cmd.Flags().StringVar(&flags.extract, "extract", "", "jq expression evaluated against the result JSON")
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "Print the full result as JSON")

	return cmd
}

func runScript(ctx context.Context, scriptPath string, flags *runFlags) error {
	body, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("failed to read script file: %w", err)
	}

	language, err := resolveLanguage(scriptPath, flags.language)
	if err != nil {
		return err
	}

	req := &script.ExecutionRequest{
		Script:   string(body),
		Language: language,
	}

	if flags.fixtureFile != "" {
		if err := loadFixture(flags.fixtureFile, req); err != nil {
			return err
		}
	}

	if flags.envFile != "" {
		snap, err := (&store.FileEnvSource{Path: flags.envFile}).Load(ctx)
		if err != nil {
			return err
		}
		req.EnvVars = snap.Active()
		Logger.Debug("loaded environment", "active", snap.ActiveEnv, "defined", snap.Names())
	}

	var vars store.VariableStore
	if flags.varsFile != "" {
		vars = &store.FileVariableStore{Path: flags.varsFile}
		req.Variables, err = vars.Read(ctx)
		if err != nil {
			return err
		}
	}

	runner := script.NewRunner(script.Config{
		DisableSubprocess: flags.noSubprocess,
		Inline:            flags.inline,
		NodeBinary:        flags.nodeBinary,
		PythonBinary:      flags.pythonBinary,
	})

	Logger.Debug("running script", "file", scriptPath, "language", language)
	result := runner.Execute(ctx, req)

	if vars != nil {
		if err := vars.Apply(ctx, result.ModifiedVariables); err != nil {
			return fmt.Errorf("failed to persist modified variables: %w", err)
		}
	}

	if flags.extract != "" {
		return printExtract(result, flags.extract)
	}
	if flags.jsonOut {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		if !result.Success {
			return fmt.Errorf("script failed")
		}
		return nil
	}

	printResult(result)
	if !result.Success {
		return fmt.Errorf("script failed: %s", result.Error)
	}
	return nil
}

func resolveLanguage(path, explicit string) (script.Language, error) {
	switch explicit {
	case "javascript", "js":
		return script.LanguageJavaScript, nil
	case "python", "py":
		return script.LanguagePython, nil
	case "":
	default:
		return "", fmt.Errorf("unsupported language: %q", explicit)
	}
	switch {
	case hasExt(path, ".js", ".mjs", ".cjs"):
		return script.LanguageJavaScript, nil
	case hasExt(path, ".py"):
		return script.LanguagePython, nil
	}
	return "", fmt.Errorf("cannot infer language from %q; pass --language", path)
}

func hasExt(path string, exts ...string) bool {
	for _, ext := range exts {
		if len(path) > len(ext) && path[len(path)-len(ext):] == ext {
			return true
		}
	}
	return false
}

func loadFixture(path string, req *script.ExecutionRequest) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixture file: %w", err)
	}
	var fix fixture
	if err := yaml.Unmarshal(data, &fix); err != nil {
		return fmt.Errorf("failed to parse fixture file %s: %w", path, err)
	}

	req.Request = script.RequestState{
		URL:         fix.Request.URL,
		Method:      fix.Request.Method,
		Headers:     collection.Normalize(fix.Request.Headers),
		QueryParams: collection.Normalize(fix.Request.QueryParams),
		PathParams:  collection.Normalize(fix.Request.PathParams),
		Body:        fix.Request.Body,
	}
	if fix.Response != nil {
		req.Response = &script.ResponseState{
			Status:     fix.Response.Status,
			StatusText: fix.Response.StatusText,
			Headers:    collection.Normalize(fix.Response.Headers),
			Body:       fix.Response.Body,
		}
	}
	return nil
}

func printResult(result *script.ExecutionResult) {
	for _, entry := range result.Logs {
		fmt.Printf("[%s] %s\n", entry.Level, formatLogArgs(entry.Args))
	}
	for _, a := range result.Assertions {
		if a.Passed {
			fmt.Printf("%s %s\n", color.GreenString("✓"), a.Condition)
		} else {
			fmt.Printf("%s %s", color.RedString("✗"), a.Condition)
			if a.Reason != "" {
				fmt.Printf(" (%s)", a.Reason)
			}
			fmt.Println()
		}
	}
	if result.Cancelled {
		fmt.Printf("%s request cancelled by script\n", color.YellowString("!"))
	}
	for k, v := range result.ModifiedVariables {
		fmt.Printf("variable %s = %v\n", color.CyanString(k), v)
	}
	if result.Success {
		fmt.Printf("%s script completed\n", color.GreenString("✓"))
	} else {
		fmt.Printf("%s %s\n", color.RedString("✗"), result.Error)
	}
}

func formatLogArgs(args []interface{}) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		switch v := a.(type) {
		case string:
			out += v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				out += fmt.Sprintf("%v", v)
				continue
			}
			out += string(b)
		}
	}
	return out
}

func printExtract(result *script.ExecutionResult, expr string) error {
	query, err := gojq.Parse(expr)
	if err != nil {
		return fmt.Errorf("failed to parse extract expression %s: %w", expr, err)
	}

	// round-trip through JSON so gojq sees plain maps and slices
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}

	iter := query.Run(doc)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return fmt.Errorf("error evaluating extract expression %s: %w", expr, err)
		}
		out, err := gojq.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return nil
}
