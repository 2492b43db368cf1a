package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"jenkins-memory-agent/src/broker"
	"jenkins-memory-agent/src/config"
	"jenkins-memory-agent/src/contracts"
	"jenkins-memory-agent/src/pipeline"
)

// localWait bounds how long local mode waits for records to be stored.
const localWait = 5 * time.Second

func newLocalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "local <record.json>...",
		Short: "Ingest typed records through an in-process pipeline",
		Long: `Runs the ingest agent against an in-memory broker and the configured store,
submits every record file in order and reports the analysis triggers that fired.
Useful for replaying a build without Redpanda.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payloads, err := readRecordFiles(args)
			if err != nil {
				return err
			}
			return runLocal(cmd.Context(), a, payloads, cmd.OutOrStdout())
		},
	}
}

// runLocal submits payloads to an in-memory pipeline and waits until every
// record is stored.
func runLocal(ctx context.Context, a *app, payloads [][]byte, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	memory, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	cfg := *a.cfg
	cfg.RedpandaBrokers = nil
	// The one-shot run never sweeps.
	cfg.RetentionInitialDelay = config.DefaultRetentionInitialDelay

	p := pipeline.NewWith(pipeline.LocalMode, &cfg, broker.NewInMemoryBroker(), memory, a.log, nil)
	defer p.Close()

	// Decode and render everything before starting the agent, so a bad
	// record fails here instead of never being stored.
	expected := make(map[string]int)
	var builds []buildKey
	perBuild := make(map[buildKey]int)
	for i, data := range payloads {
		rec, err := p.Normalizer().Decode(data)
		if err != nil {
			return fmt.Errorf("record %d: %w", i+1, err)
		}
		if _, err := p.Normalizer().ContentToAnalyze(rec); err != nil {
			return fmt.Errorf("record %d: %w", i+1, err)
		}

		if _, ok := expected[rec.ConversationID()]; !ok {
			n, err := memory.Count(ctx, rec.ConversationID())
			if err != nil {
				return err
			}
			expected[rec.ConversationID()] = n
		}
		expected[rec.ConversationID()]++

		key := buildKey{rec.ConversationID(), rec.BuildNumber()}
		if _, ok := perBuild[key]; !ok {
			builds = append(builds, key)
		}
		perBuild[key]++
	}

	triggers, err := p.Triggers(ctx, "memoryctl-local")
	if err != nil {
		return err
	}
	if err := p.Start(ctx); err != nil {
		return err
	}

	for _, data := range payloads {
		if _, err := p.Submit(ctx, data); err != nil {
			return err
		}
	}

	fired, err := waitStored(ctx, memory, expected, triggers)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Stored %d records\n", len(payloads))
	for _, b := range builds {
		fmt.Fprintf(out, "Build %s #%d: %d of %d records\n", b.job, b.build, perBuild[b], contracts.ExpectedRecordsPerBuild)
	}
	for _, t := range fired {
		fmt.Fprintf(out, "Analysis trigger: %s #%d at %s\n", t.ConversationID, t.BuildNumber, t.Timestamp)
	}
	return nil
}

type buildKey struct {
	job   string
	build int
}

type counter interface {
	Count(ctx context.Context, conversationID string) (int, error)
}

// waitStored polls message counts until they reach expected, collecting
// triggers on the way.
func waitStored(ctx context.Context, memory counter, expected map[string]int, triggers <-chan contracts.AnalysisTrigger) ([]contracts.AnalysisTrigger, error) {
	deadline := time.After(localWait)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	var fired []contracts.AnalysisTrigger
	for {
		select {
		case t, ok := <-triggers:
			if ok {
				fired = append(fired, t)
			} else {
				triggers = nil
			}
			continue
		case <-ticker.C:
		case <-deadline:
			return fired, fmt.Errorf("timed out waiting for records to be stored")
		case <-ctx.Done():
			return fired, ctx.Err()
		}

		done := true
		for id, want := range expected {
			n, err := memory.Count(ctx, id)
			if err != nil {
				return fired, err
			}
			if n < want {
				done = false
				break
			}
		}
		if !done {
			continue
		}

		// Triggers are published after the record is stored
		for {
			select {
			case t, ok := <-triggers:
				if !ok {
					return fired, nil
				}
				fired = append(fired, t)
			case <-time.After(100 * time.Millisecond):
				return fired, nil
			}
		}
	}
}
