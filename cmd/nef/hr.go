package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vincent-petithory/dataurl"

	"extranef/internal/app"
	"extranef/internal/attachment"
	"extranef/internal/nef"
)

var employeeCmd = &cobra.Command{
	Use:   "employee",
	Short: "Manage employees",
}

var employeeAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add an employee",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec := nef.Record{"name": args[0]}
		for _, field := range []string{"teamId", "roleId", "scheduleId", "contractTypeId", "email"} {
			if v, _ := cmd.Flags().GetString(field); v != "" {
				rec[field] = v
			}
		}

		a, _, err := newClientApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		added := a.HR().AddEmployee(cmd.Context(), rec)
		success("Added employee %s (%s)", added.String("name"), added.ID())
		return nil
	},
}

var employeeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List employees",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newClientApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		employees := a.HR().ListEmployees()
		if len(employees) == 0 {
			fmt.Println("No employees.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTEAM\tROLE\tSCHEDULE")
		for _, e := range employees {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.ID(), e.String("name"), e.String("teamId"), e.String("roleId"), e.String("scheduleId"))
		}
		return w.Flush()
	},
}

// deleteCmd builds a "delete ID" subcommand around one of the HR service's
// delete operations.
func deleteCmd(kind string, del func(a *app.ClientApp, ctx context.Context, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a " + kind,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := newClientApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := del(a, cmd.Context(), args[0]); err != nil {
				return err
			}
			success("Deleted %s %s", kind, args[0])
			return nil
		},
	}
}

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Manage teams",
}

var teamAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a team",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")

		a, _, err := newClientApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		added := a.HR().AddTeam(cmd.Context(), nef.Record{"name": args[0], "description": description})
		success("Added team %s (%s)", added.String("name"), added.ID())
		return nil
	},
}

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Manage roles",
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage schedules",
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Employee reports",
}

var reportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Absence, certificate and vacation totals per employee",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, _, err := newClientApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rows := a.HR().EmployeeReport()
		if asJSON {
			return printJSON(rows)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tABSENCES\tCERTIFICATES\tVACATIONS\tLAST ABSENCE")
		for _, r := range rows {
			last := r.String("lastAbsence")
			if last == "" {
				last = "-"
			}
			fmt.Fprintf(w, "%s\t%v\t%v\t%v\t%s\n",
				r.String("name"), r["totalAbsences"], r["totalCertificates"], r["totalVacations"], last)
		}
		return w.Flush()
	},
}

var certificateCmd = &cobra.Command{
	Use:   "certificate",
	Short: "Manage medical certificates",
}

var certificateAddCmd = &cobra.Command{
	Use:   "add EMPLOYEE_ID FILE",
	Short: "Record a certificate and save its attachment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		days, _ := cmd.Flags().GetInt("days")
		upload, _ := cmd.Flags().GetBool("upload")
		if date == "" {
			date = time.Now().Format("2006-01-02")
		}

		content, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading attachment: %w", err)
		}
		fileName := filepath.Base(args[1])

		a, _, err := newClientApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		employee, err := a.HR().GetEmployee(args[0])
		if err != nil {
			return err
		}
		rec := a.HR().AddCertificate(cmd.Context(), nef.Record{
			"employeeId": employee["id"],
			"date":       date,
			"days":       days,
			"fileName":   fileName,
		})
		success("Recorded certificate %s", rec.ID())

		client, err := a.Bridge()
		if err != nil {
			warn("Attachment not saved: %v", err)
			return nil
		}
		req := attachment.Request{
			EmployeeName:     employee.String("name"),
			OriginalFileName: fileName,
			EncodedPayload:   dataURL(fileName, content),
			RecordID:         rec["id"],
		}

		saved, err := client.SaveCertificate(cmd.Context(), req)
		switch {
		case err != nil:
			warn("Attachment not saved: %v", err)
		case saved.NotConfigured:
			warn("Attachment not saved: no backup directory configured")
		default:
			success("Attachment saved to %s", saved.Path)
		}

		if upload {
			up, err := client.UploadCertificate(cmd.Context(), req)
			switch {
			case err != nil:
				warn("Upload failed: %v", err)
			case up.NotConfigured:
				warn("Upload skipped: Google Drive is not configured")
			default:
				success("Uploaded %s", up.WebViewLink)
			}
		}
		return nil
	},
}

// dataURL encodes content as a base64 data URL typed by the file extension.
func dataURL(name string, content []byte) string {
	mediaType := mime.TypeByExtension(filepath.Ext(name))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	}
	return dataurl.New(content, mediaType).String()
}

func init() {
	employeeCmd.AddCommand(employeeAddCmd)
	employeeCmd.AddCommand(employeeListCmd)
	employeeCmd.AddCommand(deleteCmd("employee", func(a *app.ClientApp, ctx context.Context, id string) error {
		return a.HR().DeleteEmployee(ctx, id)
	}))
	for _, field := range []string{"teamId", "roleId", "scheduleId", "contractTypeId", "email"} {
		employeeAddCmd.Flags().String(field, "", "Employee "+field)
	}

	teamCmd.AddCommand(teamAddCmd)
	teamCmd.AddCommand(deleteCmd("team", func(a *app.ClientApp, ctx context.Context, id string) error {
		return a.HR().DeleteTeam(ctx, id)
	}))
	teamAddCmd.Flags().String("description", "", "Team description")

	roleCmd.AddCommand(deleteCmd("role", func(a *app.ClientApp, ctx context.Context, id string) error {
		return a.HR().DeleteRole(ctx, id)
	}))
	scheduleCmd.AddCommand(deleteCmd("schedule", func(a *app.ClientApp, ctx context.Context, id string) error {
		return a.HR().DeleteSchedule(ctx, id)
	}))

	reportCmd.AddCommand(reportSummaryCmd)
	reportSummaryCmd.Flags().Bool("json", false, "Print JSON instead of a table")

	certificateCmd.AddCommand(certificateAddCmd)
	certificateAddCmd.Flags().String("date", "", "Certificate date (YYYY-MM-DD, default today)")
	certificateAddCmd.Flags().Int("days", 1, "Days of leave")
	certificateAddCmd.Flags().Bool("upload", false, "Also upload the attachment to Google Drive")
}
