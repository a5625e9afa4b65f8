package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent side effects (forwards, backups, uploads)",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, _, err := newClientApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		client, err := a.Bridge()
		if err != nil {
			return err
		}

		outcomes, err := client.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(outcomes) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, o := range outcomes {
			note := o.Detail
			if msg := o.ErrorMessage(); msg != "" {
				note = msg
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				o.At.Local().Format("2006-01-02 15:04:05"), o.Operation, o.Status, o.Target, note)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries to show")
}
