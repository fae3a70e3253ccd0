// Package kernel wires the pipeline's shared infrastructure: model client,
// checkpoint store, event sinks, asset store, and the per-run engine
// assembly. The CLI talks to the kernel; nothing below this package knows
// how the pieces fit together.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"contentflow/pkg/assets"
	"contentflow/pkg/checkpoint"
	"contentflow/pkg/compressor"
	"contentflow/pkg/config"
	"contentflow/pkg/events"
	"contentflow/pkg/gate"
	"contentflow/pkg/graph"
	"contentflow/pkg/hitl"
	"contentflow/pkg/imagegen"
	"contentflow/pkg/llm"
	"contentflow/pkg/logx"
	"contentflow/pkg/metrics"
	"contentflow/pkg/render"
	"contentflow/pkg/router"
	"contentflow/pkg/stages"
	"contentflow/pkg/state"
	"contentflow/pkg/supervisor"
	"contentflow/pkg/templates"
	"contentflow/pkg/tools"
)

// Outcome is what a run or resume produced.
type Outcome struct {
	State *state.State
	// Pause is set when the run is waiting for an operator answer.
	Pause *hitl.Pause
	// ExportPath is the rendered HTML artifact, set on completion.
	ExportPath string
}

// Kernel owns the long-lived infrastructure shared by all runs.
type Kernel struct {
	Config *config.Config
	Logger *logx.Logger

	// Client is the completion client every stage and the supervisor use.
	// Tests may swap it before starting a run.
	Client llm.Client

	Renderer *templates.Renderer
	Store    *checkpoint.Store
	Pauses   *hitl.Coordinator
	Bus      *events.Bus
	Assets   *assets.Store
	Exporter *render.Renderer
	Recorder *metrics.Recorder
	Registry *prometheus.Registry

	writer        *events.Writer
	sink          events.Sink
	metricsServer *http.Server
}

// New builds the kernel from configuration. Close releases everything.
func New(cfg *config.Config) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		Config:   cfg,
		Logger:   logx.NewLogger("kernel"),
		Bus:      events.NewBus(),
		Registry: prometheus.NewRegistry(),
	}

	var err error
	if k.Client, err = buildClient(&cfg.Model); err != nil {
		return nil, err
	}
	if k.Renderer, err = templates.NewRenderer(); err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}
	if k.Store, err = checkpoint.Open(cfg.CheckpointDB); err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	if k.Assets, err = assets.NewStore(cfg.AssetsDir); err != nil {
		k.Store.Close()
		return nil, err
	}
	if k.writer, err = events.NewWriter(cfg.EventLogDir); err != nil {
		k.Store.Close()
		return nil, err
	}

	if cfg.Workflow.NonInteractive {
		k.Pauses = hitl.NewNonInteractive(k.Store)
	} else {
		k.Pauses = hitl.New(k.Store)
	}
	k.Exporter = render.NewRenderer(k.Assets)
	k.Recorder = metrics.NewRecorder(k.Registry)
	k.sink = events.Multi(k.writer, k.Bus, k.Recorder)

	if cfg.Metrics.ListenAddr != "" {
		k.serveMetrics(cfg.Metrics.ListenAddr)
	}

	return k, nil
}

// Close shuts down the kernel's services.
func (k *Kernel) Close() error {
	if k.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := k.metricsServer.Shutdown(ctx); err != nil {
			k.Logger.Warn("metrics server shutdown: %v", err)
		}
	}
	k.Bus.Close()
	var errs []error
	if err := k.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := k.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Run starts a fresh workflow for the topic. An empty topic is allowed; the
// brief compiler will ask the operator for one.
func (k *Kernel) Run(ctx context.Context, topic, referenceImg string) (*Outcome, error) {
	st := state.New(topic, k.Config.Workflow.MaxIterations)
	st.ReferenceImg = referenceImg

	eng, err := k.engineFor(ctx, st.ThreadID)
	if err != nil {
		return nil, err
	}

	k.Logger.Info("starting workflow %s (topic %q)", st.ThreadID, topic)
	st, pause, err := eng.Run(ctx, st)
	return k.outcome(st, pause, err)
}

// Resume continues a suspended workflow with the operator's answer.
func (k *Kernel) Resume(ctx context.Context, threadID, answer string) (*Outcome, error) {
	eng, err := k.engineFor(ctx, threadID)
	if err != nil {
		return nil, err
	}

	st, pause, err := eng.Resume(ctx, threadID, answer)
	return k.outcome(st, pause, err)
}

// Pending returns the open pause for a thread, if any.
func (k *Kernel) Pending(ctx context.Context, threadID string) (*hitl.Pause, error) {
	return k.Pauses.Pending(ctx, threadID)
}

// Threads lists all thread IDs with stored checkpoints.
func (k *Kernel) Threads(ctx context.Context) ([]string, error) {
	return k.Store.ListThreads(ctx)
}

// Latest returns a thread's most recent checkpoint, for archive inspection.
func (k *Kernel) Latest(ctx context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	return k.Store.LoadLatest(ctx, threadID)
}

func (k *Kernel) outcome(st *state.State, pause *hitl.Pause, err error) (*Outcome, error) {
	out := &Outcome{State: st, Pause: pause}
	if err != nil {
		return out, err
	}
	if pause == nil && st != nil && st.CurrentStage == state.StageEnd && st.Article != nil {
		path, exportErr := k.Exporter.Export(st)
		if exportErr != nil {
			k.Logger.Warn("HTML export failed: %v", exportErr)
		} else {
			out.ExportPath = path
			k.Logger.Info("exported %s", path)
		}
	}
	return out, nil
}

// engineFor assembles the per-run engine. Tool state (evidence, generated
// assets) is scoped to one run, so the registry is rebuilt each time.
func (k *Kernel) engineFor(ctx context.Context, threadID string) (*graph.Engine, error) {
	evidence := tools.NewEvidenceStore()
	assetLog := tools.NewAssetLog()

	generator, err := k.imageGenerator(ctx, threadID)
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry()
	for _, t := range []tools.Tool{
		tools.NewAskUserTool(),
		tools.NewWebSearchTool(tools.NewDuckDuckGoProvider()),
		tools.NewSaveEvidenceTool(evidence),
		tools.NewGenerateImageTool(generator, assetLog),
	} {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}

	execCfg := tools.DefaultExecutorConfig()
	if k.Config.Tools.Timeout > 0 {
		execCfg.CallTimeout = k.Config.Tools.Timeout
	}
	execCfg.MaxRetries = k.Config.Tools.MaxRetries

	deps := stages.Deps{
		Client:   k.Client,
		Renderer: k.Renderer,
		Registry: registry,
		Executor: tools.NewExecutor(registry, execCfg),
		Compressor: compressor.New(k.Client, k.Renderer, compressor.Config{
			Threshold:        k.Config.Workflow.CompressionThreshold,
			RecentTail:       k.Config.Workflow.RecentTail,
			MaxContextTokens: k.Config.Model.MaxContextTokens,
			CompactionBuffer: k.Config.Model.CompactionBuffer,
		}),
		Evidence: evidence,
		Gate:     gate.New(&k.Config.Quality),
		Sink:     k.sink,
	}

	nodes := graph.NewRegistry()
	if err := stages.RegisterAll(nodes, deps, assetLog); err != nil {
		return nil, err
	}

	return graph.NewEngine(
		nodes,
		supervisor.NewWithOptions(k.Client, k.Renderer, supervisor.Options{
			Tools:          registry.Definitions([]string{tools.ToolAskUser}),
			MaxGuidanceLen: k.Config.Workflow.MaxGuidanceLen,
		}),
		router.New(),
		k.Store,
		k.Pauses,
		k.sink,
		graph.Config{MaxSteps: k.Config.Workflow.MaxSteps},
	)
}

func (k *Kernel) imageGenerator(ctx context.Context, threadID string) (tools.ImageGenerator, error) {
	switch k.Config.Image.Provider {
	case "genai":
		key := os.Getenv(k.Config.Image.APIKeyEnv)
		return imagegen.NewGemini(ctx, key, k.Config.Image.Model, k.Assets, threadID)
	default:
		return imagegen.NewStub(k.Assets, threadID), nil
	}
}

func (k *Kernel) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(k.Registry, promhttp.HandlerOpts{}))
	k.metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := k.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			k.Logger.Warn("metrics server: %v", err)
		}
	}()
}

// buildClient selects the completion client from config and wraps it with
// retry on transient failures.
func buildClient(cfg *config.ModelCfg) (llm.Client, error) {
	var base llm.Client
	switch cfg.Provider {
	case "anthropic":
		key := cfg.APIKey()
		if key == "" {
			return nil, fmt.Errorf("anthropic provider requires %s", cfg.APIKeyEnv)
		}
		base = llm.NewAnthropicClient(key, cfg.Name)
	case "openai":
		key := cfg.APIKey()
		if key == "" {
			return nil, fmt.Errorf("openai provider requires %s", cfg.APIKeyEnv)
		}
		base = llm.NewOpenAIClient(key, cfg.Name)
	case "ollama":
		base = llm.NewOllamaClient("", cfg.Name)
	case "mock":
		base = llm.MockText()
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
	retrying := llm.NewRetryableClient(base, llm.DefaultRetryConfig)
	return llm.NewBudgetedClient(retrying, cfg.MaxReplyTokens, cfg.Temperature), nil
}
