package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/franklinbaldo/baliza/pkg/config"
	"github.com/franklinbaldo/baliza/pkg/coordinator"
	"github.com/franklinbaldo/baliza/pkg/errz"
	"github.com/franklinbaldo/baliza/pkg/log"
	"github.com/franklinbaldo/baliza/pkg/pncp"
	"github.com/franklinbaldo/baliza/pkg/types"
	"github.com/spf13/cobra"
)

// exitCancelled is returned when a run is interrupted by signal or a
// caller-cancelled context, distinct from every other fatal exit path.
const exitCancelled = 2

// fetchStatus polls a running run's status server, started via STATUS_ADDR.
func fetchStatus(addr string) (string, error) {
	resp, err := http.Get(addr)
	if err != nil {
		return "", fmt.Errorf("could not reach status server at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errz.KindOf(err) == errz.KindCancelled {
			os.Exit(exitCancelled)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "baliza",
	Short: "BALIZA Core Extraction Engine - resumable PNCP backup",
	Long: `BALIZA extracts Brazil's public procurement data (PNCP) into a
content-addressed, resumable local archive. Runs are idempotent: an
interrupted backfill picks up exactly where it left off.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"baliza version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resumeCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full extraction: plan, discover, execute, reconcile",
	Long: `Run drives one complete pass through every phase of the Core
Extraction Engine for the given date range. If a plan already exists
from a previous run, its fingerprint is checked against the current
inputs before any new work is scheduled — use --allow-replan to
proceed anyway after an intentional endpoint or date-range change.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		startStr, _ := cmd.Flags().GetString("start")
		endStr, _ := cmd.Flags().GetString("end")
		baseURL, _ := cmd.Flags().GetString("base-url")
		allowRePlan, _ := cmd.Flags().GetBool("allow-replan")
		granularityStr, _ := cmd.Flags().GetString("granularity")

		start, err := time.Parse(pncp.DateFormat, startStr)
		if err != nil {
			return fmt.Errorf("invalid --start %q: %w", startStr, err)
		}
		end, err := time.Parse(pncp.DateFormat, endStr)
		if err != nil {
			return fmt.Errorf("invalid --end %q: %w", endStr, err)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		coord, err := coordinator.New(cfg)
		if err != nil {
			return err
		}
		defer coord.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Println("\nShutting down...")
			cancel()
		}()

		phase, err := coord.Run(ctx, coordinator.Params{
			StartDate:           start,
			EndDate:             end,
			GranularityOverride: types.Granularity(granularityStr),
			BaseURL:             baseURL,
			AllowRePlan:         allowRePlan,
		})
		fmt.Printf("run finished in phase %s\n", phase)
		return err
	},
}

func init() {
	runCmd.Flags().String("start", "", "Start date (YYYYMMDD)")
	runCmd.Flags().String("end", "", "End date (YYYYMMDD)")
	runCmd.Flags().String("base-url", "https://pncp.gov.br/api", "PNCP base URL")
	runCmd.Flags().String("granularity", "", "Override every endpoint's granularity (day, month)")
	runCmd.Flags().Bool("allow-replan", false, "Proceed even if the persisted plan fingerprint does not match current inputs")
	_ = runCmd.MarkFlagRequired("start")
	_ = runCmd.MarkFlagRequired("end")
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute and persist tasks for a date range without fetching",
	RunE: func(cmd *cobra.Command, args []string) error {
		startStr, _ := cmd.Flags().GetString("start")
		endStr, _ := cmd.Flags().GetString("end")
		granularityStr, _ := cmd.Flags().GetString("granularity")

		start, err := time.Parse(pncp.DateFormat, startStr)
		if err != nil {
			return fmt.Errorf("invalid --start %q: %w", startStr, err)
		}
		end, err := time.Parse(pncp.DateFormat, endStr)
		if err != nil {
			return fmt.Errorf("invalid --end %q: %w", endStr, err)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		coord, err := coordinator.New(cfg)
		if err != nil {
			return err
		}
		defer coord.Close()

		phase, err := coord.Run(context.Background(), coordinator.Params{
			StartDate:           start,
			EndDate:             end,
			GranularityOverride: types.Granularity(granularityStr),
			AllowRePlan:         true,
		})
		fmt.Printf("planning finished in phase %s\n", phase)
		return err
	},
}

func init() {
	planCmd.Flags().String("start", "", "Start date (YYYYMMDD)")
	planCmd.Flags().String("end", "", "End date (YYYYMMDD)")
	planCmd.Flags().String("granularity", "", "Override every endpoint's granularity (day, month)")
	_ = planCmd.MarkFlagRequired("start")
	_ = planCmd.MarkFlagRequired("end")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the /status report of a running baliza run's status server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		resp, err := fetchStatus(addr)
		if err != nil {
			return err
		}
		fmt.Println(resp)
		return nil
	},
}

func init() {
	statusCmd.Flags().String("addr", "http://127.0.0.1:9090/status", "Status server URL of a running baliza run")
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume an interrupted run using its persisted plan",
	Long: `Resume re-enters the same phase sequence as run, without the
re-plan override: it fails with a plan-drift error if the database's
existing tasks were not produced by the supplied date range and
endpoint set. It does not check that a plan exists; against an empty
database it plans from scratch, as run does.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		startStr, _ := cmd.Flags().GetString("start")
		endStr, _ := cmd.Flags().GetString("end")
		baseURL, _ := cmd.Flags().GetString("base-url")

		start, err := time.Parse(pncp.DateFormat, startStr)
		if err != nil {
			return fmt.Errorf("invalid --start %q: %w", startStr, err)
		}
		end, err := time.Parse(pncp.DateFormat, endStr)
		if err != nil {
			return fmt.Errorf("invalid --end %q: %w", endStr, err)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		coord, err := coordinator.New(cfg)
		if err != nil {
			return err
		}
		defer coord.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Println("\nShutting down...")
			cancel()
		}()

		phase, err := coord.Run(ctx, coordinator.Params{
			StartDate:   start,
			EndDate:     end,
			BaseURL:     baseURL,
			AllowRePlan: false,
		})
		fmt.Printf("resume finished in phase %s\n", phase)
		return err
	},
}

func init() {
	resumeCmd.Flags().String("start", "", "Start date (YYYYMMDD), matching the interrupted run's plan")
	resumeCmd.Flags().String("end", "", "End date (YYYYMMDD), matching the interrupted run's plan")
	resumeCmd.Flags().String("base-url", "https://pncp.gov.br/api", "PNCP base URL")
	_ = resumeCmd.MarkFlagRequired("start")
	_ = resumeCmd.MarkFlagRequired("end")
}
