package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"apharvest/lib/configutil"
	"apharvest/lib/fetch"
	"apharvest/lib/fetch/cachestore"
	"apharvest/lib/scrapers/apsiken"
	"apharvest/lib/serviceutil"
	"apharvest/services/harvester"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// SessionsConfig pins the sessions to harvest. When the file is absent
// the sessions are discovered from the live start page instead.
type SessionsConfig struct {
	Sessions []apsiken.Session `json:"sessions"`
}

var harvestFlags struct {
	out         *string
	in          *string
	config      *string
	sessions    *string
	resume      *bool
	maxRequests *int
	maxQno      *int
	cache       *string
	noCache     *bool
	throttle    *time.Duration
	policy      *string
}

func init() {
	f := harvestCmd.Flags()
	harvestFlags.out = f.String("out", "dataset.json", "The dataset file to merge results into.")
	harvestFlags.in = f.String("in", "", "Read the prior dataset from this file instead of --out.")
	harvestFlags.config = f.String("config", "sessions.json5", "Session config file; discovered from the site when absent.")
	harvestFlags.sessions = f.String("sessions", "all", "Comma-separated session labels or times codes to harvest.")
	harvestFlags.resume = f.Bool("resume", false, "Seed the already-seen set from the prior dataset.")
	harvestFlags.maxRequests = f.Int("max-requests", 0, "Cap on question fetches per session.")
	harvestFlags.maxQno = f.Int("max-qno", 0, "Bound on the question number in randomized mode.")
	harvestFlags.cache = f.String("cache", "fetch-cache.db", "The sqlite database holding cached responses.")
	harvestFlags.noCache = f.Bool("no-cache", false, "Disable the response cache entirely.")
	harvestFlags.throttle = f.Duration("throttle", time.Second, "Minimum delay between network requests.")
	harvestFlags.policy = f.String("policy", "prefer-new", "Id collision policy: prefer-new or prefer-existing.")
	rootCmd.AddCommand(harvestCmd)
}

func createClient(throttle time.Duration, cachePath string, noCache bool) *apsiken.Client {
	var cache *cachestore.Store
	if !noCache {
		var err error
		cache, err = cachestore.Open(cachePath)
		if err != nil {
			serviceutil.Fatal("open response cache", err)
		}
	}
	fetcher := fetch.NewClient(fetch.Options{
		Throttle: throttle,
		Cache:    cache,
	})
	return apsiken.NewClient(fetcher)
}

// resolveSessions loads sessions from config when it exists, falling
// back to live discovery, then applies the --sessions selection.
func resolveSessions(ctx context.Context, client *apsiken.Client, configPath, selection string) ([]apsiken.Session, error) {
	var sessions []apsiken.Session

	cfg, err := configutil.ReadConfig[SessionsConfig](configPath)
	if err == nil && len(cfg.Sessions) > 0 {
		sessions = cfg.Sessions
	} else {
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading session config: %w", err)
		}
		sessions, err = client.DiscoverSessions(ctx)
		if err != nil {
			return nil, fmt.Errorf("discovering sessions: %w", err)
		}
	}

	if selection == "all" || selection == "" {
		return sessions, nil
	}

	var keys []string
	for _, k := range strings.Split(selection, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}

	var filtered []apsiken.Session
	var unknown []string
	taken := map[string]bool{}
	for _, key := range keys {
		found := false
		for _, s := range sessions {
			if s.Label != key && s.TimesCode != key {
				continue
			}
			found = true
			if !taken[s.Label] {
				taken[s.Label] = true
				filtered = append(filtered, s)
			}
		}
		if !found {
			unknown = append(unknown, key)
		}
	}
	// a selection naming anything unknown is a typo, not a subset request
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown sessions: %s", strings.Join(unknown, ", "))
	}
	return filtered, nil
}

var harvestCmd = &cobra.Command{
	Use:   "harvest [--out <path/to/dataset.json>]",
	Short: "Harvests the configured exam sessions and merges them into the dataset.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		client := createClient(*harvestFlags.throttle, *harvestFlags.cache, *harvestFlags.noCache)
		sessions, err := resolveSessions(ctx, client, *harvestFlags.config, *harvestFlags.sessions)
		if err != nil {
			serviceutil.Fatal("resolve sessions", err)
		}

		policy, err := harvester.ParsePolicy(*harvestFlags.policy)
		if err != nil {
			serviceutil.Fatal("parse merge policy", err)
		}

		t1 := time.Now()
		result, runErr := harvester.Run(ctx, client, harvester.RunOptions{
			Sessions: sessions,
			Session: harvester.SessionOptions{
				MaxRequests: *harvestFlags.maxRequests,
				MaxQno:      *harvestFlags.maxQno,
			},
			OutPath: *harvestFlags.out,
			InPath:  *harvestFlags.in,
			Resume:  *harvestFlags.resume,
			Policy:  policy,
		})
		t2 := time.Now()

		renderOutcomes(result.Outcomes)
		renderReport(result.Report, result.Merge, result.Dataset)
		fmt.Printf("harvest time: %.1fs\n", t2.Sub(t1).Seconds())

		if runErr != nil {
			serviceutil.Fatal("harvest", runErr)
		}
	},
}

func renderOutcomes(outcomes []harvester.Outcome) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Session", "State", "Requests", "Extracted", "Extract errs", "Normalize errs"})
	for _, o := range outcomes {
		t.AppendRow(table.Row{
			o.Session, o.State.String(), o.Requests,
			o.Extracted, o.ExtractErrors, o.NormalizeErrors,
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func renderReport(report harvester.Report, merge harvester.MergeResult, ds harvester.Dataset) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Year", "Questions"})

	years := make([]int, 0, len(report.PerYear))
	for y := range report.PerYear {
		years = append(years, y)
	}
	sort.Ints(years)
	for _, y := range years {
		t.AppendRow(table.Row{y, report.PerYear[y]})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()

	fmt.Printf(
		"accepted %d (rejected %d, duplicates %d), inserted %d, replaced %d, dataset v%d with %d questions\n",
		report.Total, report.Rejected, report.Duplicates,
		merge.Inserted, merge.Replaced, ds.Version, len(ds.Questions),
	)
}
