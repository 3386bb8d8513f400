package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.temporal.io/sdk/client"

	"github.com/nikahq/nika/internal/config"
	"github.com/nikahq/nika/internal/engine"
	"github.com/nikahq/nika/internal/engine/inmem"
	"github.com/nikahq/nika/internal/engine/temporal"
	"github.com/nikahq/nika/internal/eventlog"
	"github.com/nikahq/nika/internal/executor"
	"github.com/nikahq/nika/internal/mcpclient"
	"github.com/nikahq/nika/internal/tools/builtin"
	"github.com/nikahq/nika/internal/workflow"
)

func newRunCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow document to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowFile(cmd.Context(), v, args[0])
		},
	}
	return cmd
}

func runWorkflowFile(ctx context.Context, v *viper.Viper, path string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return wrapf(2, "read workflow document: %w", err)
	}
	doc, err := workflow.Parse(data)
	if err != nil {
		return wrapf(2, "parse workflow document: %w", err)
	}

	eng, err := buildEngine(ctx, cfg, v, doc)
	if err != nil {
		return newExitError(3, err)
	}
	defer eng.Close()

	outcome, err := eng.Run(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			return newExitError(130, ctx.Err())
		}
		return wrapf(2, "run workflow: %w", err)
	}

	encoded, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return wrapf(1, "encode outcome: %w", err)
	}
	fmt.Println(string(encoded))

	if outcome.Status == engine.StatusFailed {
		return newExitError(1, fmt.Errorf("task %q failed", outcome.FirstFailedTask))
	}
	return nil
}

// buildEngine wires a workflow document against either the in-process or
// Temporal engine backend, constructing the provider client, MCP server
// cache, and builtin tool registry every verb needs.
func buildEngine(ctx context.Context, cfg *config.Config, v *viper.Viper, doc *workflow.Document) (engine.Engine, error) {
	client, err := newModelClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("construct model client: %w", err)
	}

	workdir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	toolCtx, err := builtin.NewContext(workdir, builtin.AcceptEdits)
	if err != nil {
		return nil, fmt.Errorf("construct tool context: %w", err)
	}
	registry := builtin.NewRegistry(toolCtx)

	mcpCache, err := mcpclient.NewCache(len(doc.MCP)+1, stdioDialer(doc))
	if err != nil {
		return nil, fmt.Errorf("construct MCP cache: %w", err)
	}
	agentServers := make(map[string]*mcpclient.Cache, len(doc.MCP))
	for name := range doc.MCP {
		agentServers[name] = mcpCache
	}

	if v.GetBool("temporal") {
		events := eventlog.New()
		activities := temporal.NewActivities(
			executor.New(cfg.General.DefaultProvider, cfg.General.DefaultModel, events, mcpCache),
			client,
			agentServers,
			registry,
			events,
		)
		clientOpts := temporalClientOptions(cfg)
		return temporal.New(temporal.Options{
			ClientOptions: &clientOpts,
			TaskQueue:     cfg.Temporal.TaskQueue,
			Activities:    activities,
		})
	}

	return inmem.New(inmem.Options{
		Client:          client,
		InvokeServers:   mcpCache,
		AgentServers:    agentServers,
		BuiltinTools:    registry,
		Concurrency:     cfg.General.Concurrency,
		DefaultProvider: cfg.General.DefaultProvider,
		DefaultModel:    cfg.General.DefaultModel,
	}), nil
}

func temporalClientOptions(cfg *config.Config) client.Options {
	opts := client.Options{HostPort: cfg.Temporal.Address}
	if cfg.Temporal.Namespace != "" {
		opts.Namespace = cfg.Temporal.Namespace
	}
	return opts
}

func stdioDialer(doc *workflow.Document) mcpclient.Dialer {
	return func(ctx context.Context, spec mcpclient.ServerSpec) (mcpclient.Caller, error) {
		server, ok := doc.MCP[spec.Name]
		if !ok {
			return nil, fmt.Errorf("unknown MCP server %q", spec.Name)
		}
		env := make([]string, 0, len(server.Env))
		for k, val := range server.Env {
			env = append(env, k+"="+val)
		}
		return mcpclient.NewStdioCaller(ctx, mcpclient.StdioOptions{
			Command:       server.Command,
			Args:          server.Args,
			Env:           env,
			ClientName:    "nika",
			ClientVersion: "dev",
		})
	}
}
