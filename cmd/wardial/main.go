package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"wardial-server/pkg/audio"
	"wardial-server/pkg/config"
	"wardial-server/pkg/messaging"
	"wardial-server/pkg/outcome"
	"wardial-server/pkg/resume"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	cfg.ApplyLogging(logger)

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.ListenAddr, logger)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "resume":
		runResume(os.Args[2:], cfg, logger)
	case "analyze":
		runAnalyze(os.Args[2:], cfg, logger)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: wardial <resume|analyze> [flags]")
	fmt.Fprintln(os.Stderr, "  resume  -file results.csv [-prefix 555-234-56] [-randomize] [-show N]")
	fmt.Fprintln(os.Stderr, "  analyze -url https://host/recording.wav [-call-id ID]")
}

// runResume reconstructs the remaining-work list for an interrupted
// session and prints the summary the dialing loop would consume.
func runResume(args []string, cfg *config.Config, logger *logrus.Logger) {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	file := fs.String("file", "", "Results file to resume from (.csv or .db)")
	prefix := fs.String("prefix", "", "Dialing prefix (inferred from results when omitted)")
	randomize := fs.Bool("randomize", false, "Shuffle the remaining numbers")
	show := fs.Int("show", 10, "How many remaining numbers to print")
	fs.Parse(args)

	if *file == "" {
		fs.Usage()
		os.Exit(1)
	}

	sourceCfg, err := resume.DetectSource(*file)
	if err != nil {
		logger.WithError(err).Fatal("Cannot resume")
	}

	plan := resume.Plan{
		CountryCode:  cfg.Numbering.CountryCode,
		TargetLength: cfg.Numbering.TargetLength,
	}
	engine := resume.NewEngine(plan, logger)

	resumePlan, err := engine.PrepareResume(sourceCfg, *prefix, *randomize)
	if err != nil {
		logger.WithError(err).Fatal("Cannot resume")
	}

	fmt.Printf("Resuming prefix %s: %d of %d dialed, %d remaining\n",
		resumePlan.Prefix, resumePlan.DialedCount, resumePlan.Total, len(resumePlan.Remaining))

	limit := *show
	if limit > len(resumePlan.Remaining) {
		limit = len(resumePlan.Remaining)
	}
	for _, number := range resumePlan.Remaining[:limit] {
		fmt.Println(number)
	}
	if limit < len(resumePlan.Remaining) {
		fmt.Printf("... and %d more\n", len(resumePlan.Remaining)-limit)
	}
}

// runAnalyze submits one recording to the scheduler the way the dialing
// loop does: a short non-blocking poll first, then a bounded wait at
// shutdown for whatever is still pending.
func runAnalyze(args []string, cfg *config.Config, logger *logrus.Logger) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	url := fs.String("url", "", "Recording URL to analyze")
	callID := fs.String("call-id", "", "Call identifier (generated when omitted)")
	fs.Parse(args)

	if *url == "" {
		fs.Usage()
		os.Exit(1)
	}
	if *callID == "" {
		*callID = uuid.NewString()
	}

	var publisher audio.ResultPublisher
	if cfg.Messaging.Enabled() {
		amqpPub, err := messaging.NewAMQPPublisher(cfg.Messaging.AMQPURL, cfg.Messaging.QueueName, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to AMQP broker")
		}
		defer amqpPub.Close()
		publisher = amqpPub
	}

	scheduler := audio.NewScheduler(audio.SchedulerConfig{
		Workers:         cfg.Analysis.Workers,
		QueueSize:       cfg.Analysis.QueueSize,
		DownloadTimeout: cfg.Analysis.DownloadTimeout,
		AwaitTimeout:    cfg.Analysis.AwaitTimeout,
	}, publisher, logger)
	defer scheduler.Shutdown()

	handle := scheduler.Submit(*callID, *url)

	result, ready := scheduler.TryGet(*callID, cfg.Analysis.PollGrace)
	if !ready {
		logger.WithField("call_id", *callID).Debug("Analysis still pending, waiting")
		result, ready = handle.Wait(cfg.Analysis.DownloadTimeout + cfg.Analysis.AwaitTimeout)
	}
	if !ready {
		logger.Fatal("Analysis did not complete in time")
	}

	record := outcome.New("", outcome.StatusError, false, "standalone analysis").
		WithRecording(*url, 0).
		WithToneAnalysis(result)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(record); err != nil {
		logger.WithError(err).Fatal("Failed to write result")
	}
}

func serveMetrics(addr string, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.WithField("addr", addr).Info("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.WithError(err).Error("Metrics server terminated")
	}
}
