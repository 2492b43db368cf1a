package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"jenkins-memory-agent/src/config"
	"jenkins-memory-agent/src/contracts"
	"jenkins-memory-agent/src/pipeline"
	"jenkins-memory-agent/src/retention"
	"jenkins-memory-agent/src/store"
	"jenkins-memory-agent/src/tui"
)

func newHistoryCmd(a *app) *cobra.Command {
	var lastN int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history <conversation>",
		Short: "Print the most recent messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			memory, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer memory.Close()

			messages, err := memory.Get(ctx, args[0], lastN)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(messages)
			}
			printHistory(cmd.OutOrStdout(), args[0], messages)
			return nil
		},
	}

	cmd.Flags().IntVarP(&lastN, "last", "n", 20, "number of most recent messages")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print messages as JSON")
	return cmd
}

func printHistory(w io.Writer, conversationID string, messages []contracts.Message) {
	if len(messages) == 0 {
		fmt.Fprintf(w, "No messages for %s\n", conversationID)
		return
	}
	for i, msg := range messages {
		fmt.Fprintf(w, "--- [%d] %s build #%d %s %s\n",
			i+1, msg.Role, msg.BuildNumber, msg.Timestamp.UTC().Format(time.RFC3339), msg.ID)
		fmt.Fprintln(w, msg.Content)
	}
}

func newConversationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations with their message counts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			memory, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer memory.Close()

			ids, err := memory.ConversationIDs(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				n, err := memory.Count(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", id, n)
			}
			return nil
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <conversation>",
		Short: "Delete every message of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			memory, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer memory.Close()

			if err := memory.Clear(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", args[0])
			return nil
		},
	}
}

func newReadyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ready <conversation> <build>",
		Short: "Report whether both build logs of a build are stored",
		Long: `Exits with status 0 and prints "ready" when exactly two build log records
are stored for the build. Otherwise prints "not ready" and exits with status 2.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			build, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("build must be a number: %w", err)
			}

			ctx := cmd.Context()
			memory, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer memory.Close()

			ready, err := memory.HasTwoBuildLogs(ctx, args[0], build)
			if err != nil {
				return err
			}
			if !ready {
				fmt.Fprintln(cmd.OutOrStdout(), "not ready")
				return errNotReady
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ready")
			return nil
		},
	}
}

func newPruneCmd(a *app) *cobra.Command {
	var maxMessages int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Run one retention sweep over every conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("max") {
				maxMessages = a.cfg.MaxMessagesPerConversation
			}

			ctx := cmd.Context()
			memory, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer memory.Close()

			manager, err := retention.NewManager(memory, retention.Config{
				MaxMessagesPerConversation: maxMessages,
			}, a.log, nil)
			if err != nil {
				return err
			}

			result, err := manager.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Swept %d conversations: %d messages pruned, %d failures\n",
				result.Conversations, result.Pruned, result.Failures)
			if result.Failures > 0 {
				return fmt.Errorf("%d conversations could not be pruned", result.Failures)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxMessages, "max", config.DefaultMaxMessages, "messages kept per conversation")
	return cmd
}

func newPublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <record.json>...",
		Short: "Validate typed records and publish them to Redpanda",
		Long: `Each file holds one typed Jenkins record. Records are validated before
publishing to the jenkins.logs.typed topic. Requires REDPANDA_BROKERS.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.LocalMode() {
				return fmt.Errorf("publish requires REDPANDA_BROKERS; use 'memoryctl local' without a broker")
			}

			ctx := cmd.Context()
			p, err := pipeline.New(ctx, a.cfg, a.log, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			payloads, err := readRecordFiles(args)
			if err != nil {
				return err
			}
			for i, data := range payloads {
				rec, err := p.Submit(ctx, data)
				if err != nil {
					return fmt.Errorf("%s: %w", args[i], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Published %s for %s #%d\n", rec.Type(), rec.ConversationID(), rec.BuildNumber())
			}
			return nil
		},
	}
}

func newViewCmd(a *app) *cobra.Command {
	var lastN int

	cmd := &cobra.Command{
		Use:   "view <conversation>",
		Short: "Browse a conversation in the interactive viewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memory, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer memory.Close()

			return tui.Run(args[0], historyLoader(memory, args[0], lastN))
		},
	}

	cmd.Flags().IntVarP(&lastN, "last", "n", 200, "number of most recent messages")
	return cmd
}

// historyLoader adapts a store read to the viewer's reload hook.
func historyLoader(memory store.ChatMemory, conversationID string, lastN int) tui.Loader {
	return func(ctx context.Context) ([]contracts.Message, error) {
		return memory.Get(ctx, conversationID, lastN)
	}
}

func readRecordFiles(paths []string) ([][]byte, error) {
	payloads := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		payloads = append(payloads, data)
	}
	return payloads, nil
}
