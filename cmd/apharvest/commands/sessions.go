package commands

import (
	"os"
	"time"

	"apharvest/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Prints the exam sessions discoverable on the start page.",
	Run: func(cmd *cobra.Command, args []string) {
		client := createClient(time.Second, "", true)
		sessions, err := client.DiscoverSessions(cmd.Context())
		if err != nil {
			serviceutil.Fatal("discover sessions", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Label", "Year", "Times code", "Mode"})
		for _, s := range sessions {
			mode := "randomized"
			if s.Deterministic() {
				mode = "api"
			}
			t.AppendRow(table.Row{s.Label, s.Year, s.TimesCode, mode})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
