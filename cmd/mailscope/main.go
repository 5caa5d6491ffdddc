package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/adapters/analysis"
	"github.com/mailscope/mailscope/internal/adapters/cache"
	"github.com/mailscope/mailscope/internal/config"
	"github.com/mailscope/mailscope/internal/core"
	"github.com/mailscope/mailscope/internal/logging"
	"github.com/mailscope/mailscope/internal/normalize"
	"github.com/mailscope/mailscope/internal/utils"
)

var (
	// Analysis service flags
	endpoint       = flag.String("endpoint", "http://localhost:5000/analyze_email_route", "Analysis service endpoint")
	healthEndpoint = flag.String("health-endpoint", "http://localhost:5000/health", "Analysis service health endpoint")
	timeout        = flag.Duration("timeout", core.DefaultSubmissionTimeout, "Bounded wait for one submission")

	// Input flags
	inputFile = flag.String("file", "", "Input email file (use stdin if not specified)")
	retryOnce = flag.Bool("retry", false, "Retry once automatically when the submission times out")
	verbose   = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog   = flag.Bool("json-log", false, "Output logs in JSON format")
	configFlg = flag.Bool("config", false, "Load endpoint settings from the config file")
)

func main() {
	flag.Parse()

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	analysisEndpoint := *endpoint
	analysisHealth := *healthEndpoint
	submitTimeout := *timeout

	// Load configuration from file if requested
	if *configFlg {
		cfg, err := config.New()
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		analysisCfg := cfg.GetAnalysis()
		analysisEndpoint = analysisCfg.Endpoint
		analysisHealth = analysisCfg.HealthEndpoint
		if d, err := cfg.GetDuration("submission.timeout"); err == nil {
			submitTimeout = d
		}
	}

	// Read email from file or stdin
	file, err := readSelectedFile(*inputFile)
	if err != nil {
		logger.Fatal("Failed to read input", zap.Error(err))
	}

	// Assemble the pipeline
	validator := core.NewFileValidator()
	if err := validator.Validate(file); err != nil {
		// Validation failures surface inline, before any submission.
		fmt.Printf("Cannot analyze %q: %v\n", file.Name, err)
		os.Exit(1)
	}

	textProcessor := utils.NewTextProcessor(logger)
	normalizer := normalize.New(logger, textProcessor)
	client := analysis.NewClient(analysisEndpoint, analysisHealth, logger)
	resultCache := cache.NewMemoryCache(logger, 10*time.Minute)
	defer resultCache.Stop()

	controller := core.NewSubmissionController(
		client,
		normalizer,
		resultCache,
		core.NewRetryPolicy(),
		nil,
		logger,
		submitTimeout,
		time.Hour,
	)
	defer controller.Close()

	fmt.Printf("=== Submission ===\n")
	fmt.Printf("File: %s (%d bytes)\n", file.Name, file.Size)
	fmt.Printf("Analyzing...\n\n")

	controller.SelectFile(file)
	if _, err := controller.Submit(file); err != nil {
		logger.Fatal("Failed to submit file", zap.Error(err))
	}

	snap, err := controller.AwaitTerminal(context.Background())
	if err != nil {
		logger.Fatal("Interrupted while waiting for analysis", zap.Error(err))
	}

	if snap.State == core.StateTimedOut && *retryOnce && controller.CanRetry() {
		fmt.Printf("%s — retrying once...\n\n", snap.ErrorMessage)
		if _, err := controller.Retry(); err != nil {
			logger.Fatal("Failed to retry submission", zap.Error(err))
		}
		snap, err = controller.AwaitTerminal(context.Background())
		if err != nil {
			logger.Fatal("Interrupted while waiting for analysis", zap.Error(err))
		}
	}

	os.Exit(printOutcome(snap))
}

// readSelectedFile loads the message bytes from the given path or stdin.
func readSelectedFile(path string) (*core.SelectedFile, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return &core.SelectedFile{
			Name:        "stdin.eml",
			Size:        int64(len(data)),
			ContentType: core.AcceptedContentType,
			Data:        data,
		}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return &core.SelectedFile{
		Name: filepath.Base(path),
		Size: int64(len(data)),
		Data: data,
	}, nil
}

// printOutcome renders the terminal snapshot and returns the exit code.
func printOutcome(snap core.Snapshot) int {
	switch snap.State {
	case core.StateCompleted:
		report := snap.Report
		if report.IsError() {
			fmt.Printf("Analysis error: %s\n", report.ErrorMessage)
			return 1
		}
		printReport(report)
		return 0

	case core.StateTimedOut:
		fmt.Printf("Timed out: %s\n", snap.ErrorMessage)
		return 2

	default:
		fmt.Printf("Analysis failed: %s\n", snap.ErrorMessage)
		return 1
	}
}

func printReport(report *core.RiskReport) {
	fmt.Printf("=== Risk Report ===\n")
	fmt.Printf("Overall score: %d/100\n", report.OverallScore)
	fmt.Printf("Risk level:    %s\n", report.RiskLevel)
	fmt.Printf("From:          %s\n", report.FromAddress)
	fmt.Printf("To:            %s\n", report.ToAddress)
	fmt.Printf("Origin IP:     %s\n", report.OriginatingIP)

	fmt.Printf("\n--- Authentication ---\n")
	for _, check := range []string{"spf", "dkim", "dmarc"} {
		fmt.Printf("%-6s %s\n", check+":", report.AuthResults[check])
	}

	if len(report.ComponentScores) > 0 {
		fmt.Printf("\n--- Component Scores ---\n")
		names := make([]string, 0, len(report.ComponentScores))
		for name := range report.ComponentScores {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s: %.2f\n", name, report.ComponentScores[name])
		}
	}

	if len(report.Details) > 0 {
		fmt.Printf("\n--- Details ---\n")
		names := make([]string, 0, len(report.Details))
		for name := range report.Details {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s: %s\n", name, report.Details[name])
		}
	}
}
