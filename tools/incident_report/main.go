// Incident Report Tool prints the moderation summary for a recent window and,
// when ClickHouse is reachable, where reports were submitted from.
//
// Usage:
//
//	go run ./tools/incident_report -days=7
//
// Configuration:
//
//	-days: Optional. Number of days to include in the report (default: 7)
//	-postgres-dsn: Optional. Postgres connection string (default: POSTGRES_DSN)
//	-clickhouse-dsn: Optional. ClickHouse connection string; empty skips the country breakdown
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/patrickwarner/pollwatch/internal/analytics"
	"github.com/patrickwarner/pollwatch/internal/config"
	"github.com/patrickwarner/pollwatch/internal/db"
	"github.com/patrickwarner/pollwatch/internal/reporting"
)

func main() {
	cfg := config.Load()
	var (
		days    = flag.Int("days", reporting.DefaultDays, "Number of days to include in report")
		pgDSN   = flag.String("postgres-dsn", cfg.PostgresDSN, "Postgres DSN")
		chDSN   = flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse DSN")
		timeout = flag.Duration("timeout", 30*time.Second, "Query timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pg, err := db.InitPostgres(*pgDSN, 2, 1, time.Minute, time.Minute)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to Postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	summary, err := reporting.GenerateModerationSummary(ctx, pg.DB, *days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	var countries []analytics.CountryCount
	if *chDSN != "" {
		a, err := analytics.InitClickHouse(ctx, *chDSN, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: ClickHouse unavailable, skipping country breakdown: %v\n", err)
		} else {
			defer a.Close()
			since := time.Now().UTC().AddDate(0, 0, -summary.Days)
			countries, err = a.ReportsByCountry(ctx, since)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: country breakdown failed: %v\n", err)
			}
		}
	}

	printReport(os.Stdout, summary, countries, time.Now())
}

const rule = "───────────────────────────────────────────────────────────────\n"

// printReport renders the summary as plain text tables.
func printReport(w io.Writer, s *reporting.ModerationSummary, countries []analytics.CountryCount, now time.Time) {
	fmt.Fprintf(w, "INCIDENT MODERATION REPORT\n")
	fmt.Fprintf(w, "Report Period: %d days (ending %s)\n", s.Days, now.Format("2006-01-02"))
	fmt.Fprintf(w, "Total reports: %d\n\n", s.Total)

	fmt.Fprintf(w, "BY STATUS\n%s", rule)
	for _, st := range []string{"pending", "verified", "flagged", "resolved"} {
		fmt.Fprintf(w, "%-10s %8d\n", st, s.ByStatus[st])
	}
	if s.OldestPending != nil {
		fmt.Fprintf(w, "Oldest pending: %s (%s waiting)\n", s.OldestPending.Format("2006-01-02 15:04"), now.Sub(*s.OldestPending).Truncate(time.Minute))
	}
	fmt.Fprintln(w)

	if len(s.ByType) > 0 {
		fmt.Fprintf(w, "BY TYPE\n%s", rule)
		fmt.Fprintf(w, "%-18s | %8s | %8s | %6s\n", "Type", "Reports", "Verified", "Rate")
		for _, tc := range s.ByType {
			fmt.Fprintf(w, "%-18s | %8d | %8d | %5.1f%%\n", tc.IncidentType, tc.Reports, tc.Verified, percent(tc.Verified, tc.Reports))
		}
		fmt.Fprintln(w)
	}

	if len(s.Daily) > 0 {
		fmt.Fprintf(w, "DAILY\n%s", rule)
		for _, d := range s.Daily {
			fmt.Fprintf(w, "%s %6d %s\n", d.Date.Format("2006-01-02"), d.Reports, strings.Repeat("#", int(min(d.Reports, 50))))
		}
		fmt.Fprintln(w)
	}

	if len(countries) > 0 {
		fmt.Fprintf(w, "SUBMISSIONS BY COUNTRY\n%s", rule)
		for _, c := range countries {
			name := c.Country
			if name == "" {
				name = "unknown"
			}
			fmt.Fprintf(w, "%-10s %8d\n", name, c.Reports)
		}
	}
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
