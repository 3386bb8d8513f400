package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nikahq/nika/internal/engine"
	"github.com/nikahq/nika/internal/engine/inmem"
	"github.com/nikahq/nika/internal/workflow"
)

func newEventsCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "events <workflow.yaml>",
		Short: "Run a workflow and stream its event log as newline-delimited JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return streamWorkflowEvents(cmd, v, args[0])
		},
	}
}

func streamWorkflowEvents(cmd *cobra.Command, v *viper.Viper, path string) error {
	if v.GetBool("temporal") {
		return wrapf(3, "events streaming is only available against the in-process engine backend")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
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

	inmemEng, ok := eng.(*inmem.Engine)
	if !ok {
		return wrapf(3, "events streaming is only available against the in-process engine backend")
	}

	_, ch := inmemEng.Events().Subscribe(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		enc := json.NewEncoder(os.Stdout)
		for ev := range ch {
			_ = enc.Encode(ev)
		}
	}()

	outcome, runErr := eng.Run(ctx, doc)
	inmemEng.Events().Unsubscribe(ch)
	<-done

	if runErr != nil {
		return wrapf(2, "run workflow: %w", runErr)
	}
	if outcome.Status == engine.StatusFailed {
		return newExitError(1, fmt.Errorf("task %q failed", outcome.FirstFailedTask))
	}
	return nil
}
