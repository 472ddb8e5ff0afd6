package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/user/charterd/internal/config"
	"github.com/user/charterd/internal/delivery"
	"github.com/user/charterd/internal/gateway"
	"github.com/user/charterd/internal/pipeline"
	"github.com/user/charterd/internal/prompt"
	"github.com/user/charterd/internal/remote"
	"github.com/user/charterd/internal/state"
	"github.com/user/charterd/pkg/llm"
	"github.com/user/charterd/pkg/llm/openai"
)

// app holds the components shared by serve and run.
type app struct {
	cfg        *config.Config
	journal    *state.Journal
	sessions   *state.SessionStore
	artifacts  *state.ArtifactStore
	tasks      *state.TaskStore
	dialer     *remote.Dialer
	runner     *pipeline.Runner
	gateway    *gateway.Gateway
	deliveries *delivery.Registry
}

func newApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	journal := state.NewJournal(cfg.DataDir)
	sessions := state.NewSessionStore(journal)
	artifacts := state.NewArtifactStore(cfg.DataDir)

	// Stage calls are bounded by stage_timeout through their context.
	httpClient := &http.Client{}

	var provider llm.Provider
	if cfg.LLM.APIKey != "" {
		provider = openai.New(&llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		}, openai.WithHTTPClient(httpClient))
	}
	dialer := remote.NewDialer(httpClient, provider)

	composer, err := prompt.New(cfg.LLM.Model, cfg.MaxInputTokens)
	if err != nil {
		return nil, fmt.Errorf("create composer: %w", err)
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}

	stageSpec := func(name string, sc config.StageConfig) (pipeline.StageSpec, error) {
		caller, err := dialer.Dial(remote.Endpoint{
			Name:        name,
			Protocol:    sc.Protocol,
			CardURL:     sc.CardURL,
			BaseURL:     sc.BaseURL,
			Instruction: sc.Instruction,
		})
		if err != nil {
			return pipeline.StageSpec{}, err
		}
		return pipeline.StageSpec{Caller: caller, StateKey: sc.StateKey, Progress: sc.Progress}, nil
	}
	opts := pipeline.Options{
		MaxIterations: cfg.Loop.MaxIterations,
		StageTimeout:  timeout,
		Composer:      composer,
	}
	if opts.Researcher, err = stageSpec(pipeline.StageResearcher, cfg.Stages.Researcher); err != nil {
		return nil, err
	}
	if opts.Judge, err = stageSpec(pipeline.StageJudge, cfg.Stages.Judge); err != nil {
		return nil, err
	}
	if opts.ContentBuilder, err = stageSpec(pipeline.StageContentBuilder, cfg.Stages.ContentBuilder); err != nil {
		return nil, err
	}

	runner := pipeline.NewRunner(sessions, artifacts, pipeline.Build(opts), opts.ContentKey(), pipeline.StageContentBuilder)
	gw := gateway.New(sessions, int64(cfg.MaxConcurrent))
	gw.Queue.SetProcessor(runner.ProcessRun)

	deliveries := delivery.NewRegistry()
	deliveries.Register("file", delivery.FileHandler(filepath.Join(cfg.DataDir, "documents")))

	return &app{
		cfg:        cfg,
		journal:    journal,
		sessions:   sessions,
		artifacts:  artifacts,
		tasks:      state.NewTaskStore(filepath.Join(cfg.DataDir, "tasks.json")),
		dialer:     dialer,
		runner:     runner,
		gateway:    gw,
		deliveries: deliveries,
	}, nil
}

// fireTask runs a named task through the gateway and hands the document to
// the task's delivery target. A failed delivery is logged; the document is
// still returned.
func (a *app) fireTask(ctx context.Context, task *state.Task, message string) (string, error) {
	resp, err := a.gateway.Submit(ctx, task.Inbound("task", message))
	if err != nil {
		return "", fmt.Errorf("run task %s: %w", task.Name, err)
	}
	if task.DeliverTo != "" {
		if err := a.deliveries.Deliver(ctx, task.DeliverTo, resp); err != nil {
			slog.Error("task delivery failed", "task", task.Name, "target", task.DeliverTo, "error", err)
		}
	}
	return resp, nil
}
