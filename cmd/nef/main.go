package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"extranef/internal/app"
	"extranef/internal/config"
)

func main() {
	if err := app.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "nef",
	Short:        "HR records with a desktop datastore, backups and Drive uploads",
	SilenceUsage: true,
}

var verbose bool

// loadConfig reads the config file and applies environment overrides.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config (run 'nef config init' first): %w", err)
	}
	if err := app.ApplyEnvironment(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newClientApp reads the config and creates a ClientApp. The caller must
// defer Close.
func newClientApp(cmd *cobra.Command) (*app.ClientApp, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.NewClientApp(cmd.Context(), cfg, app.ClientOptions{Verbose: verbose})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, cfg, nil
}

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
)

func success(format string, args ...any) {
	okColor.Printf("✓ "+format+"\n", args...)
}

func warn(format string, args ...any) {
	warnColor.Fprintf(os.Stderr, "! "+format+"\n", args...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readSecret prompts on stderr and reads a line without echo when stdin is
// a terminal.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr at debug level")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tableCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(employeeCmd)
	rootCmd.AddCommand(teamCmd)
	rootCmd.AddCommand(roleCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(certificateCmd)
	rootCmd.AddCommand(gdriveCmd)
	rootCmd.AddCommand(historyCmd)
}
