package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	pasugo "github.com/pasugo/pasugo-chat-go"
)

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <task-id>",
		Short: "Print the conversation of a task without opening the socket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return withAPI(cmd, cfg, func(ctx context.Context, client *pasugo.Client) error {
				api := client.API()
				conv, err := api.ResolveConversation(ctx, pasugo.ID(args[0]))
				if err != nil {
					return err
				}
				msgs, err := api.History(ctx, conv.ID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(msgs) == 0 {
					fmt.Fprintln(out, "no messages yet")
					return nil
				}
				self := client.Identity().UserID
				for _, m := range msgs {
					fmt.Fprintln(out, formatMessage(m, self))
				}
				return nil
			})
		},
	}
}

func newTaskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task <task-id>",
		Short: "Print the current status of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return withAPI(cmd, cfg, func(ctx context.Context, client *pasugo.Client) error {
				task, err := client.API().GetTask(ctx, pasugo.ID(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatTask(*task))
				return nil
			})
		},
	}
}

// withAPI runs fn with a client that is never connected; only its REST
// side is used.
func withAPI(cmd *cobra.Command, cfg *cliConfig, fn func(context.Context, *pasugo.Client) error) error {
	client, stop, err := newClient(cfg, nil, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer stop()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout)
	defer cancel()
	return fn(ctx, client)
}
