package cmd

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tensorbay/aegis/internal/config"
	"github.com/tensorbay/aegis/internal/scheduler"
)

var (
	benchRate     float64
	benchDuration time.Duration
	benchTenant   string
	benchSeed     int64
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Drive the scheduler with a synthetic Poisson arrival stream",
	Run: func(cmd *cobra.Command, args []string) {
		logrus.SetLevel(parseLogLevel())

		ctx, cancel := context.WithTimeout(context.Background(), benchDuration)
		defer cancel()

		cfg := config.Default()
		s, err := scheduler.New(ctx, cfg)
		if err != nil {
			logrus.Fatalf("starting scheduler: %v", err)
		}
		defer s.Stop()

		generatePoissonArrivals(ctx, s, benchRate, benchTenant, benchSeed)

		report := s.Health()
		logrus.WithFields(logrus.Fields{
			"total_requests": report.TotalRequests,
			"accepted":       report.Accepted,
			"rejected":       report.Rejected,
			"rejection_rate": report.RejectionRate,
		}).Info("bench complete")

		snap := s.Metrics()
		logrus.WithFields(logrus.Fields{
			"throughput_tps":       snap.ThroughputTPS,
			"gpu_utilization":      snap.GPUUtilization,
			"jains_fairness":       snap.JainsFairnessIndex,
			"cost_per_million_usd": snap.CostPerMillionTokensUSD,
		}).Info("final metrics")
	},
}

// generatePoissonArrivals injects synthetic admission requests at
// exponentially-distributed inter-arrival intervals until ctx expires,
// adapted from the teacher's GeneratePoissonArrivals (tick-scheduled event
// injection) into real-time time.Sleep-paced goroutine injection — the
// Poisson process's rate parameterization is unchanged, only the clock
// substrate (simulated ticks vs wall time) differs.
func generatePoissonArrivals(ctx context.Context, s *scheduler.Scheduler, rate float64, tenantID string, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		meanInterval := time.Duration(float64(time.Second) / rate)
		interval := time.Duration(rng.ExpFloat64() * float64(meanInterval))
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		_, err := s.Admit(scheduler.AdmitParams{
			TenantID:     tenantID,
			PromptTokens: 50 + rng.Intn(200),
			PriorityBid:  rng.Intn(10),
		})
		if err != nil {
			logrus.WithError(err).Debug("bench admission rejected")
		}
	}
}

func init() {
	benchCmd.Flags().Float64Var(&benchRate, "rate", 100, "Mean arrival rate in requests per second")
	benchCmd.Flags().DurationVar(&benchDuration, "duration", 10*time.Second, "How long to generate arrivals")
	benchCmd.Flags().StringVar(&benchTenant, "tenant", "tenant_a", "Tenant ID to admit requests under")
	benchCmd.Flags().Int64Var(&benchSeed, "seed", 1, "Random seed for the Poisson arrival generator")
}
