// Command printwatch captures FactorioPrints user snapshots and answers
// latest-state and new-activity queries over them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"printwatch/internal/app"
	"printwatch/internal/capture"
	"printwatch/internal/config"
	"printwatch/internal/report"
	"printwatch/internal/scheduler"
	"printwatch/internal/scraper"
	"printwatch/internal/store"
)

const dateLayout = "2006-01-02"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	log := newLogger()

	var err error
	switch os.Args[1] {
	case "snapshot":
		err = runSnapshot(os.Args[2:], log)
	case "list":
		err = runList(os.Args[2:], log)
	case "latest":
		err = runLatest(os.Args[2:], log)
	case "report":
		err = runReport(os.Args[2:], log)
	case "delete":
		err = runDelete(os.Args[2:], log)
	case "watch":
		err = runWatch(os.Args[2:], log)
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: printwatch <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  snapshot --user <url>                      Capture a snapshot of the user's content and comments")
	fmt.Println("  list [--user <url>]                        List stored snapshot timestamps")
	fmt.Println("  latest --user <url>                        Show the user's content as of the latest snapshot")
	fmt.Println("  report --user <url> --start <date>         CSV of items with new comments between two dates")
	fmt.Println("         [--end <date>]                      (dates are YYYY-MM-DD, end defaults to today)")
	fmt.Println("  delete --timestamp <ts>                    Delete the snapshot taken at the given instant")
	fmt.Println("  watch                                      Run scheduled captures for configured users")
	fmt.Println()
	fmt.Println("All commands accept --config <path> to override the config file location.")
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// openStore loads config and opens the snapshot database.
func openStore(cfgPath string) (*config.Config, *store.Store, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, st, nil
}

// newService builds the full capture pipeline from config.
func newService(cfg *config.Config, st *store.Store, log zerolog.Logger) *app.Service {
	sc := scraper.New(cfg.Capture.Headless, cfg.Capture.PageTimeout(), log)
	orch := capture.New(sc, cfg.Capture.Concurrency, cfg.Capture.ThreadTimeout(), log)
	return app.New(st, orch, log)
}

func runSnapshot(args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	user := fs.String("user", "", "user page URL (required)")
	fs.Parse(args)
	if *user == "" {
		return errors.New("--user is required")
	}

	cfg, st, err := openStore(*cfgPath)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := newService(cfg, st, log)
	ts, err := svc.Capture(context.Background(), *user)
	if err != nil {
		return err
	}

	fmt.Printf("Snapshot stored at %s\n", ts.Format(time.RFC3339Nano))
	return nil
}

func runList(args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	user := fs.String("user", "", "filter by user page URL")
	fs.Parse(args)

	_, st, err := openStore(*cfgPath)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(context.Background(), *user)
	if err != nil {
		return err
	}
	for _, ts := range runs {
		fmt.Println(ts.Format(time.RFC3339Nano))
	}
	return nil
}

func runLatest(args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("latest", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	user := fs.String("user", "", "user page URL (required)")
	fs.Parse(args)
	if *user == "" {
		return errors.New("--user is required")
	}

	_, st, err := openStore(*cfgPath)
	if err != nil {
		return err
	}
	defer st.Close()

	states, err := st.LatestState(context.Background(), *user)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		fmt.Printf("No snapshots found for %s\n", *user)
		return nil
	}
	for _, s := range states {
		fmt.Printf("%s\t%s\t%d favourites\t%d comments\n",
			s.Item.URL, s.Snapshot.Name, s.Snapshot.Favourites, s.Snapshot.TotalComments)
	}
	return nil
}

func runReport(args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	user := fs.String("user", "", "user page URL (required)")
	startStr := fs.String("start", "", "start date, YYYY-MM-DD (required)")
	endStr := fs.String("end", "", "end date, YYYY-MM-DD (defaults to today)")
	fs.Parse(args)
	if *user == "" || *startStr == "" {
		return errors.New("--user and --start are required")
	}

	start, err := time.ParseInLocation(dateLayout, *startStr, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid start date %q, use YYYY-MM-DD", *startStr)
	}
	end := time.Now().UTC()
	if *endStr != "" {
		end, err = time.ParseInLocation(dateLayout, *endStr, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid end date %q, use YYYY-MM-DD", *endStr)
		}
	}

	_, st, err := openStore(*cfgPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()

	startRun, err := st.ResolveRunOnDate(ctx, *user, start)
	if err != nil {
		return reportResolveError(err)
	}
	endRun, err := st.ResolveRunOnDate(ctx, *user, end)
	if err != nil {
		return reportResolveError(err)
	}

	rows, err := st.NewActivity(ctx, startRun, endRun)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Printf("No items with new comments between %s and %s\n",
			start.Format(dateLayout), end.Format(dateLayout))
		return nil
	}

	out, err := report.CSV(rows)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// reportResolveError turns a missing-run day into a plain message
// instead of an error exit.
func reportResolveError(err error) error {
	var noRun *store.NoRunOnDateError
	if errors.As(err, &noRun) {
		fmt.Printf("No snapshots found for %s on %s\n",
			noRun.UserURL, noRun.Date.Format(dateLayout))
		return nil
	}
	return err
}

func runDelete(args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	tsStr := fs.String("timestamp", "", "snapshot timestamp to delete (RFC 3339)")
	fs.Parse(args)
	if *tsStr == "" {
		return errors.New("--timestamp is required")
	}

	ts, err := time.Parse(time.RFC3339Nano, *tsStr)
	if err != nil {
		// Accept a naive timestamp and assume UTC.
		ts, err = time.ParseInLocation("2006-01-02T15:04:05", *tsStr, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q, use RFC 3339 (e.g. 2026-06-05T08:00:00Z)", *tsStr)
		}
	}

	_, st, err := openStore(*cfgPath)
	if err != nil {
		return err
	}
	defer st.Close()

	counts, err := st.DeleteRun(context.Background(), ts)
	if err != nil {
		return err
	}

	fmt.Printf("Deleted snapshot at %s: %d comments, %d items, %d runs\n",
		ts.UTC().Format(time.RFC3339Nano), counts.Comments, counts.Items, counts.Runs)
	return nil
}

func runWatch(args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	fs.Parse(args)

	cfg, st, err := openStore(*cfgPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(cfg.Watch.Users) == 0 {
		return errors.New("no users configured under [watch]")
	}

	svc := newService(cfg, st, log)

	sched, err := scheduler.New(cfg.Watch.Timezone, log)
	if err != nil {
		return err
	}

	for _, user := range cfg.Watch.Users {
		name := "capture " + user
		job := func(ctx context.Context) error {
			_, _, err := svc.CaptureIfStale(ctx, user, cfg.Watch.MinInterval())
			return err
		}
		if err := sched.AddJob(name, cfg.Watch.Cron, job); err != nil {
			return err
		}
	}

	sched.Start()
	log.Info().Int("users", len(cfg.Watch.Users)).Str("cron", cfg.Watch.Cron).Msg("watching")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	<-sched.Stop().Done()
	return nil
}
