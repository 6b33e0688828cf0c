// Command pipelinedemo wires a typed Pipeline end to end: config → logger
// → back-pressure semaphore → recorder → pool registry → memory-pressure
// detector → Prometheus collector, then runs a few sample commands through
// it, prints their results, and logs a trace summary and recorder stats.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfred-ai/alfred-pipeline/examples"
	"github.com/alfred-ai/alfred-pipeline/logger"
	"github.com/alfred-ai/alfred-pipeline/memorypressure"
	"github.com/alfred-ai/alfred-pipeline/metricsexport"
	"github.com/alfred-ai/alfred-pipeline/objpool"
	"github.com/alfred-ai/alfred-pipeline/pipeline"
	"github.com/alfred-ai/alfred-pipeline/pipelineconfig"
	"github.com/alfred-ai/alfred-pipeline/recorder"
	"github.com/alfred-ai/alfred-pipeline/semaphore"
)

// greetCommand is the sample command type run through the demo pipeline.
type greetCommand struct {
	Name string
}

var errEmptyName = errors.New("name must not be empty")

func greetHandler(ctx context.Context, cmd greetCommand, cctx *pipeline.CommandContext) (string, error) {
	if cmd.Name == "" {
		return "", errEmptyName
	}
	return "hello, " + cmd.Name, nil
}

func main() {
	cfg := pipelineconfig.Load()
	log := logger.New(cfg)
	log.Info().Str("env", cfg.Env).Msg("pipeline demo starting")

	rec := recorder.New(cfg.RecorderMaxRecords)

	backPressureCfg := semaphore.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		MaxOutstanding: cfg.MaxOutstanding,
		MaxQueueMemory: cfg.MaxQueueMemory,
		Strategy:       cfg.BackPressureStrategy(),
		Logger:         log,
	}

	p, err := pipeline.New(pipeline.Config[greetCommand, string]{
		Handler:         greetHandler,
		MaxDepth:        cfg.MaxDepth,
		UseContextPool:  cfg.UseContextPool,
		ContextPoolSize: cfg.ContextPoolSize,
		BackPressure:    &backPressureCfg,
		Recorder:        rec,
		Logger:          log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("pipeline init failed")
	}

	if err := p.AddMiddleware(examples.NewRetryMiddleware[greetCommand, string](pipeline.PriorityPreProcessing, 3, 10*time.Millisecond)); err != nil {
		log.Fatal().Err(err).Msg("add retry middleware failed")
	}
	if err := p.AddMiddleware(examples.NewTimeoutMiddleware[greetCommand, string](pipeline.PriorityPostProcessing, 2*time.Second)); err != nil {
		log.Fatal().Err(err).Msg("add timeout middleware failed")
	}

	registryCfg := objpool.DefaultRegistryConfig()
	registryCfg.CleanupInterval = cfg.RegistryCleanupInterval
	registryCfg.MinShrinkInterval = cfg.RegistryMinShrinkInterval
	registryCfg.IntelligentShrinkingEnabled = cfg.IntelligentShrinkingEnabled
	poolRegistry := objpool.NewRegistry(registryCfg)
	defer poolRegistry.Shutdown()

	detector := memorypressure.Default()
	handlerID := detector.Register(func(level memorypressure.Level) {
		log.Warn().Str("level", level.String()).Msg("memory pressure notification")
		poolRegistry.HandleMemoryPressure(toPoolPressureLevel(level))
	})
	defer detector.Unregister(handlerID)

	collector := metricsexport.New(poolRegistry, nil, rec)
	promRegistry := prometheus.NewRegistry()
	if err := promRegistry.Register(collector); err != nil {
		log.Fatal().Err(err).Msg("collector registration failed")
	}
	promMux := http.NewServeMux()
	promMux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	metricsSrv := &http.Server{Addr: ":9090", Handler: promMux}
	go func() {
		log.Info().Str("addr", metricsSrv.Addr).Msg("metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	for _, name := range []string{"ada", "grace", ""} {
		result, err := p.Execute(context.Background(), greetCommand{Name: name}, nil)
		if err != nil {
			log.Error().Err(err).Str("name", name).Msg("command failed")
			continue
		}
		fmt.Println(result)
	}

	trace := p.Trace(greetCommand{Name: "trace-me"}, pipeline.NewContext(pipeline.NewMetadata()))
	log.Info().Int("active", len(trace.Active)).Int("skipped", len(trace.Skipped)).Msg("sample trace captured")

	stats := rec.Stats()
	log.Info().
		Int("recorded", stats.CurrentCount).
		Float64("success_rate", stats.SuccessRate()).
		Msg("recorder summary")

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown failed")
	}
	log.Info().Msg("pipeline demo stopped")
}

// toPoolPressureLevel translates the process-wide pressure signal into the
// objpool package's dependency-free mirror of the same three levels.
func toPoolPressureLevel(level memorypressure.Level) objpool.PressureLevel {
	switch level {
	case memorypressure.Warning:
		return objpool.PressureWarning
	case memorypressure.Critical:
		return objpool.PressureCritical
	default:
		return objpool.PressureNormal
	}
}
