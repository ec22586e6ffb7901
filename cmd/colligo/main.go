// Command colligo packs and drives publication acquisition jobs: scrape
// article pages, parse metadata out of them, commit the results to the
// publication database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/app"
	"github.com/ternarybob/colligo/internal/commit"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/parse"
	"github.com/ternarybob/colligo/internal/scrape"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

const usageText = `Colligo acquires publication metadata in three stages.

Usage:
  colligo [-config FILE]... <command> [flags] [args]

Commands:
  scrape   Pack a scrape job from URL inputs and drive it
  parse    Pack a parse job over scraped pages and drive it
  commit   Pack a commit job over parsed metadata and drive it
  status   Show unfinished jobs and pipeline counters
  unmark   Clear parsed/committed marks so a stage can be redone
  delete   Delete a job row and its actions

Run "colligo <command> -h" for the command's flags.
`

func init() {
	// Register custom flag for multiple config files
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usageText)
		fmt.Fprintln(os.Stderr, "\nGlobal flags:")
		flag.PrintDefaults()
	}
}

func main() {
	// Parse command-line flags
	flag.Parse()

	// Handle version flag
	if *showVersion || *showVersionV {
		fmt.Printf("Colligo version %s\n", common.GetVersion())
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Initialize logger
	// 3. Print banner

	// Auto-discover config file if not specified: colligo.toml in the current
	// directory wins, otherwise the per-user config file (written with
	// commented defaults on first run).
	if len(configFiles) == 0 {
		if _, err := os.Stat("colligo.toml"); err == nil {
			configFiles = append(configFiles, "colligo.toml")
		} else if path, err := common.DefaultConfigPath(); err == nil {
			if _, err := common.EnsureConfigFile(path); err == nil {
				configFiles = append(configFiles, path)
			}
		}
	}

	// 1. Load configuration (default -> file1 -> file2 -> ... -> env)
	// Later config files override earlier ones
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		// Use temporary logger for startup errors
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	// 2. Initialize logger with final configuration
	logger := common.InitLogger(config)

	// 3. Print banner
	common.PrintBanner(common.GetVersion())

	common.InstallCrashHandler(filepath.Join(config.Global.DataDirectory, "logs"))

	logger.Debug().
		Strs("config_files", configFiles).
		Str("data_directory", config.Global.DataDirectory).
		Str("log_level", config.Logging.Level).
		Msg("Resolved configuration")

	os.Exit(dispatch(args[0], args[1:], config, logger))
}

// dispatch runs one command against a fresh App and returns the process exit
// code. Deferred cleanup runs before the exit code reaches os.Exit.
func dispatch(command string, args []string, config *common.Config, logger arbor.ILogger) int {
	defer common.RecoverWithCrashFile()

	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return 1
	}
	defer application.Close()

	// Ctrl+C cancels the run context; the runner stops at the next action
	// boundary and leaves the job resumable.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "scrape":
		return runScrape(ctx, application, args)
	case "parse":
		return runParse(ctx, application, args)
	case "commit":
		return runCommit(ctx, application, args)
	case "status":
		return runStatus(ctx, application, args)
	case "unmark":
		return runUnmark(ctx, application, args)
	case "delete":
		return runDelete(ctx, application, args)
	default:
		fmt.Fprintf(os.Stderr, "colligo: unknown command %q\n\n", command)
		flag.Usage()
		return 2
	}
}

func runScrape(ctx context.Context, application *app.App, args []string) int {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	jsonFile := fs.String("json", "", "JSON input file of article_url records")
	textFile := fs.String("text", "", "Text input file, one URL or DOI per line")
	label := fs.String("label", "", "Job label (generated when empty)")
	description := fs.String("description", "", "Free-form job description")
	cleanup := fs.Bool("cleanup", false, "Remove the download directory once the archive is written")
	jobLabel := fs.String("job", "", "Existing job label to drive instead of packing a new one")
	resume := fs.Bool("resume", false, "Resume the existing job from its persisted step")
	fs.Parse(args)

	engine := application.ScrapeEngine(*cleanup)

	runLabel := *jobLabel
	if runLabel == "" {
		opts := scrape.JobOptions{Label: *label, Description: *description}
		var job *models.ScrapeJob
		var err error
		switch {
		case *jsonFile != "":
			job, err = engine.NewJobFromJSONFile(ctx, *jsonFile, opts)
		case *textFile != "":
			job, err = engine.NewJobFromTextFile(ctx, *textFile, opts)
		case fs.NArg() > 0:
			job, err = engine.NewJobFromList(ctx, fs.Args(), opts)
		default:
			fmt.Fprintln(os.Stderr, "scrape: need -json, -text, URL arguments, or -job")
			return 2
		}
		if err != nil {
			application.Logger.Error().Err(err).Msg("Failed to pack scrape job")
			return 1
		}
		fmt.Printf("packed scrape job %s with %d actions\n", job.Label, job.Publications)
		runLabel = job.Label
	}

	return runJob(ctx, application, engine, runLabel, restartMode(*resume))
}

func runParse(ctx context.Context, application *app.App, args []string) int {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	mode := fs.String("mode", models.ParseModeAll, "Packing mode: A unparsed, E everything, S named scrape jobs, F raw files")
	scrapeJobs := fs.String("scrape-jobs", "", "Comma-separated scrape job labels (mode S)")
	publishers := fs.String("publishers", "", "Comma-separated publisher codes to try (empty tries all registered)")
	journals := fs.String("journals", "", "Comma-separated journal names to restrict the parser candidates to")
	dtypes := fs.String("dtypes", "", "Comma-separated data types (default txt)")
	noScrapeMark := fs.Bool("no-scrape-mark", false, "Leave the parsed marks on scrape rows untouched")
	label := fs.String("label", "", "Job label (generated when empty)")
	description := fs.String("description", "", "Free-form job description")
	jobLabel := fs.String("job", "", "Existing job label to drive instead of packing a new one")
	resume := fs.Bool("resume", false, "Resume the existing job from its persisted step")
	fs.Parse(args)

	filter := parse.Filter{
		Publishers: splitList(*publishers),
		Journals:   splitList(*journals),
		DataTypes:  splitList(*dtypes),
	}
	engine, err := application.ParseEngine(filter, *noScrapeMark)
	if err != nil {
		application.Logger.Error().Err(err).Msg("Failed to build parse engine")
		return 1
	}

	runLabel := *jobLabel
	if runLabel == "" {
		opts := parse.JobOptions{Label: *label, Description: *description}
		var job *models.ParseJob
		switch strings.ToUpper(*mode) {
		case models.ParseModeAll:
			job, err = engine.NewJobAuto(ctx, opts)
		case models.ParseModeEvery:
			job, err = engine.NewJobEverything(ctx, opts)
		case models.ParseModeSelected:
			labels := splitList(*scrapeJobs)
			if len(labels) == 0 {
				fmt.Fprintln(os.Stderr, "parse: mode S needs -scrape-jobs")
				return 2
			}
			job, err = engine.NewJobFromScrapeJobs(ctx, labels, opts)
		case models.ParseModeFiles:
			if fs.NArg() == 0 {
				fmt.Fprintln(os.Stderr, "parse: mode F needs file arguments")
				return 2
			}
			job, err = engine.NewJobFromFiles(ctx, fs.Args(), opts)
		default:
			fmt.Fprintf(os.Stderr, "parse: unknown mode %q (want A, E, S or F)\n", *mode)
			return 2
		}
		if err != nil {
			application.Logger.Error().Err(err).Msg("Failed to pack parse job")
			return 1
		}
		fmt.Printf("packed parse job %s with %d actions\n", job.Label, job.Publications)
		runLabel = job.Label
	}

	return runJob(ctx, application, engine, runLabel, restartMode(*resume))
}

func runCommit(ctx context.Context, application *app.App, args []string) int {
	fs := flag.NewFlagSet("commit", flag.ExitOnError)
	mode := fs.String("mode", models.CommitModeAll, "Packing mode: A uncommitted, E everything, P named parse jobs")
	parseJobs := fs.String("parse-jobs", "", "Comma-separated parse job labels (mode P)")
	overwrite := fs.Bool("overwrite", false, "Replace the stored publication when the DOI already exists")
	noParseMark := fs.Bool("no-parse-mark", false, "Leave the committed marks on parse rows untouched")
	label := fs.String("label", "", "Job label (generated when empty)")
	description := fs.String("description", "", "Free-form job description")
	jobLabel := fs.String("job", "", "Existing job label to drive instead of packing a new one")
	resume := fs.Bool("resume", false, "Resume the existing job from its persisted step")
	fs.Parse(args)

	engine := application.CommitEngine(commit.Options{
		Overwrite:   *overwrite,
		NoParseMark: *noParseMark,
	})

	runLabel := *jobLabel
	if runLabel == "" {
		opts := commit.JobOptions{Label: *label, Description: *description}
		var job *models.CommitJob
		var err error
		switch strings.ToUpper(*mode) {
		case models.CommitModeAll:
			job, err = engine.NewJobAuto(ctx, opts)
		case models.CommitModeEvery:
			job, err = engine.NewJobEverything(ctx, opts)
		case models.CommitModeSelected:
			labels := splitList(*parseJobs)
			if len(labels) == 0 {
				fmt.Fprintln(os.Stderr, "commit: mode P needs -parse-jobs")
				return 2
			}
			job, err = engine.NewJobFromParseJobs(ctx, labels, opts)
		default:
			fmt.Fprintf(os.Stderr, "commit: unknown mode %q (want A, E or P)\n", *mode)
			return 2
		}
		if err != nil {
			application.Logger.Error().Err(err).Msg("Failed to pack commit job")
			return 1
		}
		fmt.Printf("packed commit job %s with %d actions\n", job.Label, job.Publications)
		runLabel = job.Label
	}

	return runJob(ctx, application, engine, runLabel, restartMode(*resume))
}

func runStatus(ctx context.Context, application *app.App, args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	showJournals := fs.Bool("journals", false, "Include the per-journal publication summary")
	fs.Parse(args)

	stages := []models.Stage{models.StageScrape, models.StageParse, models.StageCommit}
	unfinished := 0
	for _, stage := range stages {
		cores, err := application.JobStore.NotExecuted(ctx, stage)
		if err != nil {
			application.Logger.Error().Err(err).Str("stage", string(stage)).Msg("Failed to list jobs")
			return 1
		}
		for _, core := range cores {
			fmt.Printf("%-6s %s status=%s step=%d/%d successes=%d fails=%d\n",
				stage, core.Label, core.Status, core.Step, core.Publications, core.Successes, core.Fails)
			unfinished++
		}
	}
	if unfinished == 0 {
		fmt.Println("no unfinished jobs")
	}

	unparsed, err := application.ActionStore.UnparsedScrapeActions(ctx)
	if err != nil {
		application.Logger.Error().Err(err).Msg("Failed to count unparsed actions")
		return 1
	}
	uncommitted, err := application.ActionStore.UncommittedParseActions(ctx)
	if err != nil {
		application.Logger.Error().Err(err).Msg("Failed to count uncommitted actions")
		return 1
	}
	total, err := application.PubStore.Count(ctx)
	if err != nil {
		application.Logger.Error().Err(err).Msg("Failed to count publications")
		return 1
	}
	fmt.Printf("unparsed scrape actions:   %d\n", len(unparsed))
	fmt.Printf("uncommitted parse actions: %d\n", len(uncommitted))
	fmt.Printf("stored publications:       %d\n", total)

	if *showJournals {
		rows, err := application.PubStore.JournalSummary(ctx)
		if err != nil {
			application.Logger.Error().Err(err).Msg("Failed to summarize journals")
			return 1
		}
		for _, row := range rows {
			fmt.Printf("%-10s %-50s %5d  received %s .. %s\n",
				row.Publisher, row.Journal, row.Count, row.FirstReceived, row.LastReceived)
		}
	}
	return 0
}

func runUnmark(ctx context.Context, application *app.App, args []string) int {
	fs := flag.NewFlagSet("unmark", flag.ExitOnError)
	scrapeJob := fs.String("scrape-job", "", "Scrape job label whose actions lose their parsed mark")
	parseJob := fs.String("parse-job", "", "Parse job label whose actions lose their committed mark")
	fs.Parse(args)

	if *scrapeJob == "" && *parseJob == "" {
		fmt.Fprintln(os.Stderr, "unmark: need -scrape-job or -parse-job")
		return 2
	}
	if *scrapeJob != "" {
		if err := application.ActionStore.UnmarkParsed(ctx, *scrapeJob); err != nil {
			application.Logger.Error().Err(err).Str("label", *scrapeJob).Msg("Failed to unmark scrape job")
			return 1
		}
		fmt.Printf("cleared parsed marks on %s\n", *scrapeJob)
	}
	if *parseJob != "" {
		if err := application.ActionStore.UnmarkCommitted(ctx, *parseJob); err != nil {
			application.Logger.Error().Err(err).Str("label", *parseJob).Msg("Failed to unmark parse job")
			return 1
		}
		fmt.Printf("cleared committed marks on %s\n", *parseJob)
	}
	return 0
}

func runDelete(ctx context.Context, application *app.App, args []string) int {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	stage := fs.String("stage", "", "Job stage: scrape, parse or commit")
	fs.Parse(args)

	st := models.Stage(*stage)
	if !st.Valid() {
		fmt.Fprintf(os.Stderr, "delete: unknown stage %q (want scrape, parse or commit)\n", *stage)
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "delete: need at least one job label")
		return 2
	}
	for _, label := range fs.Args() {
		if err := application.JobStore.DeleteJob(ctx, st, label); err != nil {
			application.Logger.Error().Err(err).Str("label", label).Msg("Failed to delete job")
			return 1
		}
		fmt.Printf("deleted %s job %s\n", st, label)
	}
	return 0
}

// runJob drives the labeled job through the runner and prints the end-of-job
// report. Contained action failures leave the exit code at zero; they are
// visible in the report and the job stays queryable for re-runs.
func runJob(ctx context.Context, application *app.App, exec jobs.Executor, label string, mode jobs.RestartMode) int {
	report, err := application.Runner.Run(ctx, exec, label, mode)
	if report != nil {
		fmt.Printf("%s job %s %s\n", report.Stage, report.Label, report)
	}
	if err != nil {
		application.Logger.Error().Err(err).Str("label", label).Msg("Run failed")
		return 1
	}
	return 0
}

func restartMode(resume bool) jobs.RestartMode {
	if resume {
		return jobs.Resume
	}
	return jobs.FromScratch
}

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
