package reporting

import (
	"sort"
	"time"

	"github.com/patrickwarner/pollwatch/internal/models"
)

// FromIncidents builds the same summary as GenerateModerationSummary from an
// already loaded list. It backs the summary when incidents are kept in memory.
func FromIncidents(list []models.Incident, days int, now time.Time) *ModerationSummary {
	days = ClampDays(days)
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	summary := &ModerationSummary{
		Days:     days,
		ByStatus: map[string]int64{},
		ByType:   []TypeCount{},
		Daily:    []DailyCount{},
	}
	for _, st := range models.Statuses {
		summary.ByStatus[string(st)] = 0
	}

	types := map[string]*TypeCount{}
	daily := map[time.Time]int64{}
	for _, inc := range list {
		if inc.Status == models.StatusPending {
			created := inc.CreatedAt.UTC()
			if summary.OldestPending == nil || created.Before(*summary.OldestPending) {
				summary.OldestPending = &created
			}
		}
		if inc.CreatedAt.Before(cutoff) {
			continue
		}
		summary.Total++
		summary.ByStatus[string(inc.Status)]++

		tc, ok := types[string(inc.IncidentType)]
		if !ok {
			tc = &TypeCount{IncidentType: string(inc.IncidentType)}
			types[string(inc.IncidentType)] = tc
		}
		tc.Reports++
		if inc.Status == models.StatusVerified {
			tc.Verified++
		}

		c := inc.CreatedAt.UTC()
		daily[time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, time.UTC)]++
	}

	for _, tc := range types {
		summary.ByType = append(summary.ByType, *tc)
	}
	sort.Slice(summary.ByType, func(i, j int) bool {
		if summary.ByType[i].Reports != summary.ByType[j].Reports {
			return summary.ByType[i].Reports > summary.ByType[j].Reports
		}
		return summary.ByType[i].IncidentType < summary.ByType[j].IncidentType
	})

	for day, n := range daily {
		summary.Daily = append(summary.Daily, DailyCount{Date: day, Reports: n})
	}
	sort.Slice(summary.Daily, func(i, j int) bool {
		return summary.Daily[i].Date.After(summary.Daily[j].Date)
	})
	return summary
}
