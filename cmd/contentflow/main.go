// Command contentflow runs the content production pipeline: research,
// brief, writing, layout, image generation, and review, driven by a
// supervisor model.
//
// Usage:
//
//	contentflow run -topic "..." [-ref image.png] [-config contentflow.yaml]
//	contentflow resume -thread <id> -answer "..."
//	contentflow pending -thread <id>
//	contentflow threads
//	contentflow stats -thread <id> [-config contentflow.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"contentflow/internal/kernel"
	"contentflow/pkg/config"
	"contentflow/pkg/events"
	"contentflow/pkg/hitl"
	"contentflow/pkg/metrics"
)

// Version information - set via ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(ctx, os.Args[2:])
	case "resume":
		err = cmdResume(ctx, os.Args[2:])
	case "pending":
		err = cmdPending(ctx, os.Args[2:])
	case "show":
		err = cmdShow(ctx, os.Args[2:])
	case "threads":
		err = cmdThreads(ctx, os.Args[2:])
	case "stats":
		err = cmdStats(ctx, os.Args[2:])
	case "version":
		fmt.Printf("contentflow %s (%s)\n", version, commit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `contentflow - supervised content production pipeline

Commands:
  run      Start a new workflow for a topic
  resume   Answer a pending question and continue a suspended workflow
  pending  Show the open question for a thread
  show     Show a thread's latest checkpoint
  threads  List known workflow threads
  stats    Show aggregated metrics for a thread (needs metrics.prometheus_url)
  version  Show version information

Run 'contentflow <command> -h' for command flags.
`)
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func loadKernel(configPath string) (*kernel.Kernel, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return kernel.New(cfg)
}

func cmdRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	topic := fs.String("topic", "", "Topic to produce content for (asked interactively if empty)")
	ref := fs.String("ref", "", "Reference image path for style analysis (optional)")
	configPath := fs.String("config", "", "Path to YAML configuration")
	quiet := fs.Bool("quiet", false, "Suppress event streaming")
	noInput := fs.Bool("no-input", false, "Never pause for operator questions; stages take defaults")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *noInput {
		cfg.Workflow.NonInteractive = true
	}
	k, err := kernel.New(cfg)
	if err != nil {
		return err
	}
	defer k.Close()
	stopStream := streamEvents(k, *quiet)
	defer stopStream()

	out, err := k.Run(ctx, *topic, *ref)
	if err != nil {
		return err
	}
	report(out)
	return nil
}

// streamEvents prints pipeline events to stdout as the run progresses.
func streamEvents(k *kernel.Kernel, quiet bool) func() {
	if quiet {
		return func() {}
	}
	ch, cancel := k.Bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			switch e.Type {
			case events.TypeStageStart:
				fmt.Printf("> %s\n", e.Stage)
			case events.TypeToolCall:
				fmt.Printf("  tool %v\n", e.Payload["name"])
			case events.TypeError:
				reason := e.Payload["code"]
				if reason == nil {
					reason = e.Payload["error"]
				}
				fmt.Printf("  error at %s: %v\n", e.Stage, reason)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func cmdResume(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	thread := fs.String("thread", "", "Thread ID of the suspended workflow")
	answer := fs.String("answer", "", "Answer to the pending question")
	configPath := fs.String("config", "", "Path to YAML configuration")
	quiet := fs.Bool("quiet", false, "Suppress event streaming")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *thread == "" || *answer == "" {
		return fmt.Errorf("resume requires -thread and -answer")
	}

	k, err := loadKernel(*configPath)
	if err != nil {
		return err
	}
	defer k.Close()
	stopStream := streamEvents(k, *quiet)
	defer stopStream()

	out, err := k.Resume(ctx, *thread, *answer)
	if err != nil {
		return err
	}
	report(out)
	return nil
}

func cmdPending(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pending", flag.ExitOnError)
	thread := fs.String("thread", "", "Thread ID to inspect")
	configPath := fs.String("config", "", "Path to YAML configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *thread == "" {
		return fmt.Errorf("pending requires -thread")
	}

	k, err := loadKernel(*configPath)
	if err != nil {
		return err
	}
	defer k.Close()

	pause, err := k.Pending(ctx, *thread)
	if errors.Is(err, hitl.ErrNoSuspendedRun) {
		fmt.Printf("thread %s has no pending question\n", *thread)
		return nil
	}
	if err != nil {
		return err
	}
	printPause(pause)
	return nil
}

func cmdShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	thread := fs.String("thread", "", "Thread ID to inspect")
	configPath := fs.String("config", "", "Path to YAML configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *thread == "" {
		return fmt.Errorf("show requires -thread")
	}

	k, err := loadKernel(*configPath)
	if err != nil {
		return err
	}
	defer k.Close()

	cp, err := k.Latest(ctx, *thread)
	if err != nil {
		return err
	}
	st := cp.State
	fmt.Printf("thread:  %s\n", cp.ThreadID)
	fmt.Printf("saved:   %s (%s at %s)\n", cp.CreatedAt.Format("2006-01-02 15:04:05"), cp.Reason, cp.Stage)
	fmt.Printf("topic:   %s\n", st.Topic)
	fmt.Printf("steps:   %d  revisions: %d/%d\n", st.StepCount, st.IterationCount, st.MaxIterations)
	fmt.Printf("done:    research=%t layout=%t content=%t plan=%t images=%t review=%t\n",
		st.ResearchComplete, st.LayoutComplete, st.ContentComplete,
		st.PlanComplete, st.ImagesComplete, st.ReviewComplete)
	if st.Article != nil {
		fmt.Printf("article: %s\n", st.Article.Title)
	}
	if cp.Question != "" {
		fmt.Printf("pending: %s\n", cp.Question)
	}
	return nil
}

func cmdThreads(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("threads", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	k, err := loadKernel(*configPath)
	if err != nil {
		return err
	}
	defer k.Close()

	threads, err := k.Threads(ctx)
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		fmt.Println("no workflow threads yet")
		return nil
	}
	for _, id := range threads {
		fmt.Println(id)
	}
	return nil
}

func cmdStats(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	thread := fs.String("thread", "", "Thread ID to aggregate")
	configPath := fs.String("config", "", "Path to YAML configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *thread == "" {
		return fmt.Errorf("stats requires -thread")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Metrics.PrometheusURL == "" {
		return fmt.Errorf("stats requires metrics.prometheus_url in the configuration")
	}

	qs, err := metrics.NewQueryService(cfg.Metrics.PrometheusURL)
	if err != nil {
		return err
	}
	m, err := qs.GetThreadMetrics(ctx, *thread)
	if err != nil {
		return err
	}
	byStage, err := qs.GetThreadMetricsByStage(ctx, *thread)
	if err != nil {
		return err
	}

	fmt.Printf("thread:     %s\n", m.ThreadID)
	fmt.Printf("stage runs: %d\n", m.StageRuns)
	fmt.Printf("tool calls: %d\n", m.ToolCalls)
	fmt.Printf("errors:     %d\n", m.Errors)
	if len(byStage) > 0 {
		fmt.Println("by stage:")
		stages := make([]string, 0, len(byStage))
		for s := range byStage {
			stages = append(stages, s)
		}
		sort.Strings(stages)
		for _, s := range stages {
			fmt.Printf("  %-28s %d\n", s, byStage[s])
		}
	}
	return nil
}

func report(out *kernel.Outcome) {
	if out.Pause != nil {
		printPause(out.Pause)
		return
	}
	st := out.State
	fmt.Printf("workflow %s complete in %d steps (%d revision passes)\n",
		st.ThreadID, st.StepCount, st.IterationCount)
	if st.Article != nil {
		fmt.Printf("  article: %s\n", st.Article.Title)
	}
	fmt.Printf("  images:  %d generated\n", st.GeneratedImageCount)
	if out.ExportPath != "" {
		fmt.Printf("  export:  %s\n", out.ExportPath)
	}
}

func printPause(p *hitl.Pause) {
	fmt.Printf("workflow %s is waiting at %s:\n", p.ThreadID, p.Stage)
	fmt.Printf("  %s\n", p.Question)
	fmt.Printf("resume with: contentflow resume -thread %s -answer \"...\"\n", p.ThreadID)
}
