package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"extranef/internal/encryption"
	"extranef/internal/nef"
)

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Read and overwrite raw tables",
}

var tableGetCmd = &cobra.Command{
	Use:   "get TABLE",
	Long:  "Print the rows of a table. TABLE may omit the extranef_ prefix.",
	Short: "Print the rows of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := tableName(args[0])
		if err != nil {
			return err
		}
		a, _, err := newClientApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return printJSON(a.Adapter().GetTable(name))
	},
}

var tableSaveCmd = &cobra.Command{
	Use:   "save TABLE [FILE]",
	Short: "Overwrite a table with a JSON array read from FILE or stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := tableName(args[0])
		if err != nil {
			return err
		}
		data, err := readInput(args[1:])
		if err != nil {
			return err
		}
		rows, err := nef.DecodeRows(data)
		if err != nil {
			return fmt.Errorf("decoding rows: %w", err)
		}

		a, _, err := newClientApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		a.Adapter().Persist(cmd.Context(), name, rows)
		success("Saved %d row(s) to %s", len(rows), name)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every table as one JSON document",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		a, cfg, err := newClientApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := json.MarshalIndent(a.HR().Export(), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding export: %w", err)
		}

		if encrypt {
			pass, err := readSecret("Passphrase: ")
			if err != nil {
				return err
			}
			confirm, err := readSecret("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if pass != confirm {
				return fmt.Errorf("passphrases do not match")
			}
			sealer, err := encryption.NewSealerFromConfig(cfg.Encryption, pass)
			if err != nil {
				return err
			}
			var sealed bytes.Buffer
			if err := sealer.Seal(bytes.NewReader(data), &sealed); err != nil {
				return fmt.Errorf("sealing export: %w", err)
			}
			data = sealed.Bytes()
		}

		if out == "" || out == "-" {
			_, err := os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(out, data, 0600); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		success("Exported to %s", out)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import [FILE]",
	Short: "Replace tables with those in an exported document",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(args)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if encryption.IsSealed(data) {
			pass, err := readSecret("Passphrase: ")
			if err != nil {
				return err
			}
			sealer, err := encryption.NewSealerFromConfig(cfg.Encryption, pass)
			if err != nil {
				return err
			}
			var opened bytes.Buffer
			if err := sealer.Open(bytes.NewReader(data), &opened); err != nil {
				return fmt.Errorf("opening sealed export: %w", err)
			}
			data = opened.Bytes()
		}

		dump := nef.NewDump()
		if err := json.Unmarshal(data, dump); err != nil {
			return err
		}

		a, _, err := newClientApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.HR().Import(cmd.Context(), dump); err != nil {
			return fmt.Errorf("importing: %w", err)
		}
		success("Imported %d table(s)", len(dump.Tables))
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all records and restore default reference tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("refusing to clear all data without --yes")
		}

		a, _, err := newClientApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		a.HR().ClearAll(cmd.Context())
		success("All data cleared")
		return nil
	},
}

// tableName accepts a full table name or one without the "extranef_" prefix.
func tableName(arg string) (string, error) {
	for _, name := range []string{arg, "extranef_" + arg} {
		if nef.IsKnownTable(name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", nef.ErrUnknownTable, arg)
}

// readInput reads the file named by args[0], or stdin when there is none.
func readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", args[0], err)
	}
	return data, nil
}

func init() {
	tableCmd.AddCommand(tableGetCmd)
	tableCmd.AddCommand(tableSaveCmd)

	exportCmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")
	exportCmd.Flags().Bool("encrypt", false, "Seal the export with a passphrase")

	resetCmd.Flags().Bool("yes", false, "Confirm clearing all data")
}
