package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentcore/nexus/pkg/models"
)

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), buildVersionString())
			return nil
		},
	}
}

// buildRunCmd runs a single prompt to completion and prints the final
// assistant message or finish summary.
func buildRunCmd(configPath *string) *cobra.Command {
	var (
		prompt       string
		storePath    string
		workdir      string
		confirm      bool
		maxIter      int
		conversation string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single prompt to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("--prompt is required")
			}

			cfg, err := loadRuntimeConfig(*configPath)
			if err != nil {
				return err
			}

			if conversation == "" {
				conversation = uuid.NewString()
			}
			stack, err := buildConversation(cfg, conversation, storePath, workdir, confirm, maxIter)
			if err != nil {
				return err
			}
			defer stack.Close()

			ctx := cmd.Context()
			if err := stack.driver.SendMessage(ctx, prompt, nil); err != nil {
				return err
			}
			result, err := stack.driver.Run(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.WaitingForConfirmation {
				fmt.Fprintf(out, "waiting for confirmation on: %v\n", stack.driver.PendingCallIDs())
				return nil
			}

			view, verr := stack.es.View(ctx, conversation)
			if verr != nil {
				return verr
			}
			printFinalOutput(out, view)
			return nil
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "", "the message to send")
	cmd.Flags().StringVar(&storePath, "store", "", "path to a sqlite event store (default: in-memory)")
	cmd.Flags().StringVar(&workdir, "workdir", mustGetwd(), "working directory reported in the system prompt")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "pause for confirmation before executing tool calls")
	cmd.Flags().IntVar(&maxIter, "max-iterations", 0, "override the per-run iteration cap (0 = default)")
	cmd.Flags().StringVar(&conversation, "conversation", "", "conversation id to resume (default: a fresh id)")
	return cmd
}

// buildChatCmd drives an interactive REPL: each line read from stdin is
// sent as a user message and the conversation is run to its next
// terminal point (assistant message, finish, pause, or confirmation
// wait) before prompting for the next line.
func buildChatCmd(configPath *string) *cobra.Command {
	var (
		storePath    string
		workdir      string
		confirm      bool
		maxIter      int
		conversation string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRuntimeConfig(*configPath)
			if err != nil {
				return err
			}

			if conversation == "" {
				conversation = uuid.NewString()
			}
			stack, err := buildConversation(cfg, conversation, storePath, workdir, confirm, maxIter)
			if err != nil {
				return err
			}
			defer stack.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "conversation %s (type 'exit' to quit)\n", conversation)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					return nil
				}

				if err := stack.driver.SendMessage(ctx, line, nil); err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
					continue
				}
				result, err := stack.driver.Run(ctx)
				if err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
					continue
				}

				view, verr := stack.es.View(ctx, conversation)
				if verr != nil {
					fmt.Fprintf(out, "error: %v\n", verr)
					continue
				}
				printFinalOutput(out, view)

				if result.WaitingForConfirmation {
					fmt.Fprintf(out, "waiting for confirmation on: %v (resume not yet supported from chat)\n", stack.driver.PendingCallIDs())
				}
				if result.Finished {
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "path to a sqlite event store (default: in-memory)")
	cmd.Flags().StringVar(&workdir, "workdir", mustGetwd(), "working directory reported in the system prompt")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "pause for confirmation before executing tool calls")
	cmd.Flags().IntVar(&maxIter, "max-iterations", 0, "override the per-run iteration cap (0 = default)")
	cmd.Flags().StringVar(&conversation, "conversation", "", "conversation id to resume (default: a fresh id)")
	return cmd
}

// printFinalOutput prints the most recent assistant message or finish
// summary in view, tracing back from the end of the log.
func printFinalOutput(out io.Writer, view models.View) {
	for i := len(view.Events) - 1; i >= 0; i-- {
		ev := view.Events[i]
		switch ev.Type {
		case models.EventTypeAgentFinished:
			fmt.Fprintf(out, "%s\n", ev.AgentFinished.FinalMessage)
			return
		case models.EventTypeMessage:
			if ev.Message != nil && ev.Message.Role == models.MessageRoleAssistant {
				fmt.Fprintf(out, "%s\n", ev.Message.Content)
				return
			}
		case models.EventTypePause:
			return
		}
	}
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
