package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"extranef/internal/config"
	"extranef/internal/nef"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage the backup directory",
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Write a backup now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newClientApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		client, err := a.Bridge()
		if err != nil {
			return err
		}

		res, err := client.RunBackup(cmd.Context())
		if err != nil {
			return fmt.Errorf("running backup: %w", err)
		}
		if res.NotConfigured {
			warn("No backup directory configured (use 'nef backup set-dir')")
			return nil
		}
		success("Backup written to %s", res.Path)
		return nil
	},
}

var backupConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change backup settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newClientApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		client, err := a.Bridge()
		if err != nil {
			return err
		}

		var cfg *config.UserConfig
		if cmd.Flags().Changed("auto") {
			auto, _ := cmd.Flags().GetBool("auto")
			cfg, err = client.PatchBackupConfig(cmd.Context(), config.BackupPatch{AutoBackup: &auto})
		} else {
			cfg, err = client.BackupConfig(cmd.Context())
		}
		if err != nil {
			return err
		}

		dir := cfg.BackupDirPath()
		if dir == "" {
			dir = "(not set)"
		}
		fmt.Printf("Backup dir:  %s\n", dir)
		fmt.Printf("Auto backup: %v\n", cfg.AutoBackup)
		return nil
	},
}

var backupSetDirCmd = &cobra.Command{
	Use:   "set-dir PATH",
	Short: "Set the backup directory and write a first backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newClientApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		client, err := a.Bridge()
		if err != nil {
			return err
		}

		res, err := client.SetBackupDir(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		success("Backup dir set to %s", res.Path)
		switch o := res.Backup.Outcome(); o.Status {
		case nef.StatusSuccess:
			success("Backup written to %s", o.Detail)
		case nef.StatusSkipped:
			warn("No backup written: %s", o.Detail)
		default:
			warn("Backup %s: %s", o.Status, o.ErrorMessage())
		}
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupRunCmd)
	backupCmd.AddCommand(backupConfigCmd)
	backupCmd.AddCommand(backupSetDirCmd)
	backupConfigCmd.Flags().Bool("auto", true, "Enable or disable auto backup")
}
