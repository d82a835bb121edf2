package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrickwarner/pollwatch/internal/config"
	"github.com/patrickwarner/pollwatch/internal/db"
	"github.com/patrickwarner/pollwatch/internal/models"
	"github.com/patrickwarner/pollwatch/internal/observability"
)

var (
	count     = flag.Int("count", 50, "number of incidents to insert")
	reporters = flag.Int("reporters", 5, "number of distinct reporter ids")
	days      = flag.Int("days", 14, "spread created_at over this many past days")
	seed      = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
)

var stations = []string{
	"Kibera Primary School",
	"Moi Avenue Hall",
	"Westlands Community Centre",
	"Kisumu Social Hall",
	"Eldoret Town Primary",
	"Mombasa Polytechnic",
	"Nakuru Municipal Grounds",
	"Garissa Youth Centre",
}

var observations = map[models.IncidentType]string{
	models.IncidentViolence:         "A group of youths disrupted the queue and threatened voters outside the gate.",
	models.IncidentBribery:          "An agent was seen handing out envelopes to voters waiting in the line.",
	models.IncidentTechFailure:      "The biometric kit failed to identify voters for most of the morning.",
	models.IncidentLongQueues:       "Voters have been waiting for more than four hours with only one clerk.",
	models.IncidentMissingMaterials: "The station ran out of ballot papers for the presidential race before noon.",
	models.IncidentAgentIssues:      "Party agents were turned away by the presiding officer without explanation.",
	models.IncidentIrregularities:   "Ballot boxes were moved to a back room before the counting started.",
	models.IncidentOther:            "Lights went out during counting and the tally continued by phone torch.",
}

func main() {
	flag.Parse()

	logger, err := observability.InitLoggerWithService("seed-incidents")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	r := rand.New(rand.NewSource(*seed))
	now := time.Now().UTC()
	ctx := context.Background()
	byStatus := map[models.Status]int{}
	for i := 0; i < *count; i++ {
		inc := fakeIncident(r, now, *reporters, *days)
		if err := pg.Insert(ctx, &inc); err != nil {
			logger.Fatal("insert incident", zap.Error(err))
		}
		byStatus[inc.Status]++
	}

	logger.Info("seeded incidents",
		zap.Int("count", *count),
		zap.Int("verified", byStatus[models.StatusVerified]),
		zap.Int("pending", byStatus[models.StatusPending]),
		zap.Int64("seed", *seed))
}

// fakeIncident builds one plausible report. About a fifth are anonymous and
// status follows a rough moderation mix weighted towards pending.
func fakeIncident(r *rand.Rand, now time.Time, reporters, days int) models.Incident {
	typ := models.IncidentTypes[r.Intn(len(models.IncidentTypes))]
	station := stations[r.Intn(len(stations))]
	created := now.Add(-time.Duration(r.Int63n(int64(max(days, 1)) * int64(24*time.Hour))))

	inc := models.Incident{
		ID:           uuid.NewString(),
		IncidentType: typ,
		Location:     station,
		Description:  strings.TrimSpace(observations[typ] + " Reported at " + station + "."),
		Evidence:     []string{},
		Status:       randomStatus(r),
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	if r.Intn(5) == 0 {
		inc.Anonymous = true
	} else {
		inc.ReportedBy = models.StringPtr(fmt.Sprintf("seed-user-%d", r.Intn(max(reporters, 1))+1))
	}
	if r.Intn(2) == 0 {
		inc.Coordinates = &models.Coordinates{
			Lat: -4.5 + r.Float64()*9,
			Lng: 34 + r.Float64()*7,
		}
	}
	if inc.Status != models.StatusPending {
		inc.VerifiedBy = models.StringPtr("seed-admin")
		inc.UpdatedAt = created.Add(time.Duration(r.Intn(180)) * time.Minute)
	}
	return inc
}

func randomStatus(r *rand.Rand) models.Status {
	switch n := r.Intn(10); {
	case n < 4:
		return models.StatusPending
	case n < 8:
		return models.StatusVerified
	case n < 9:
		return models.StatusFlagged
	default:
		return models.StatusResolved
	}
}
