package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"extranef/internal/bridge"
	"extranef/internal/cloudsync"
	"extranef/internal/config"
)

// loginTimeout bounds the browser consent flow.
const loginTimeout = 5 * time.Minute

var gdriveCmd = &cobra.Command{
	Use:   "gdrive",
	Short: "Google Drive uploads",
}

var gdriveConfigureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Store the OAuth client and Drive folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		g := config.GoogleConfig{}
		g.ClientID, _ = cmd.Flags().GetString("client-id")
		g.ClientSecret, _ = cmd.Flags().GetString("client-secret")
		g.FolderID, _ = cmd.Flags().GetString("folder-id")
		g.Scope, _ = cmd.Flags().GetString("scope")
		if g.ClientID == "" {
			return fmt.Errorf("--client-id is required")
		}
		if g.ClientSecret == "" {
			secret, err := readSecret("Client secret: ")
			if err != nil {
				return err
			}
			g.ClientSecret = strings.TrimSpace(secret)
		}

		a, _, err := newClientApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		client, err := a.Bridge()
		if err != nil {
			return err
		}

		state, err := client.ConfigureGoogle(cmd.Context(), g)
		if err != nil {
			return err
		}
		success("Google Drive %s", state)
		return nil
	},
}

var gdriveLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to Google in the browser",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := bridge.NewClient(cfg.Bridge.Address, &http.Client{Timeout: loginTimeout + 10*time.Second})

		ctx, cancel := context.WithTimeout(cmd.Context(), loginTimeout)
		defer cancel()

		fmt.Println("Complete the sign-in in your browser...")
		state, err := client.GoogleLogin(ctx)
		if err != nil {
			return fmt.Errorf("signing in: %w", err)
		}
		success("Google Drive %s", state)
		return nil
	},
}

var gdriveUploadReportCmd = &cobra.Command{
	Use:   "upload-report ENTITY",
	Short: "Upload an absences or vacations report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		period, _ := cmd.Flags().GetString("period")
		format, _ := cmd.Flags().GetString("format")

		a, _, err := newClientApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		client, err := a.Bridge()
		if err != nil {
			return err
		}

		res, err := client.UploadReport(cmd.Context(), cloudsync.ReportRequest{Entity: args[0], Period: period, Format: format})
		if err != nil {
			return err
		}
		if res.NotConfigured {
			warn("Upload skipped: Google Drive is not configured")
			return nil
		}
		success("Uploaded %d row(s): %s", res.Count, res.WebViewLink)
		return nil
	},
}

func init() {
	gdriveCmd.AddCommand(gdriveConfigureCmd)
	gdriveCmd.AddCommand(gdriveLoginCmd)
	gdriveCmd.AddCommand(gdriveUploadReportCmd)

	gdriveConfigureCmd.Flags().String("client-id", "", "OAuth client id")
	gdriveConfigureCmd.Flags().String("client-secret", "", "OAuth client secret (prompted when empty)")
	gdriveConfigureCmd.Flags().String("folder-id", "", "Drive folder receiving uploads")
	gdriveConfigureCmd.Flags().String("scope", config.DefaultGoogleScope, "OAuth scope")

	gdriveUploadReportCmd.Flags().String("period", "month", "day, week or month")
	gdriveUploadReportCmd.Flags().String("format", "csv", "csv, json or xlsx")
}
