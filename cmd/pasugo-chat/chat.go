package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	pasugo "github.com/pasugo/pasugo-chat-go"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <task-id>",
		Short: "Open the chat for a task",
		Long: `Opens the conversation of a task and reads lines from stdin.

Plain lines are sent as messages. Commands:
  /typing            announce typing (stops automatically when idle)
  /stop              stop typing
  /focus, /blur      mark the window focused or in the background
  /accept            accept the task (rider)
  /start             start the task (rider)
  /bill <amt> [url]  submit the purchase bill (rider)
  /complete          complete the task (rider)
  /paid              confirm payment (customer)
  /cancel [reason]   cancel the task
  /quit              leave the chat`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runChat(cmd, cfg, pasugo.ID(args[0]))
		},
	}
}

func runChat(cmd *cobra.Command, cfg *cliConfig, taskID pasugo.ID) error {
	ctx, stopSignals := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := newTerminalRenderer(cmd.OutOrStdout())
	client, stop, err := newClient(cfg, r, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer stop()
	r.self = client.Identity().UserID

	if _, err := client.Connect(ctx, taskID); err != nil {
		return err
	}

	lines := readLines(cmd.InOrStdin())
	for {
		select {
		case <-ctx.Done():
			return client.Close()
		case line, ok := <-lines:
			if !ok {
				return client.Close()
			}
			quit, err := dispatch(ctx, client, line)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			}
			if quit {
				return client.Close()
			}
		}
	}
}

func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

// chatter is the part of *pasugo.Client the line commands drive.
type chatter interface {
	Send(content string) error
	StartTyping()
	StopTyping()
	SetFocused(focused bool)
	Accept(ctx context.Context) (*pasugo.TaskSnapshot, error)
	Start(ctx context.Context) (*pasugo.TaskSnapshot, error)
	Complete(ctx context.Context) (*pasugo.TaskSnapshot, error)
	Cancel(ctx context.Context, reason string) (*pasugo.TaskSnapshot, error)
	SubmitBill(ctx context.Context, amount decimal.Decimal, receiptURL string) (*pasugo.TaskSnapshot, error)
	ConfirmPayment(ctx context.Context) (*pasugo.TaskSnapshot, error)
}

var errUsage = errors.New("usage")

// dispatch runs one input line and reports whether the user asked to quit.
func dispatch(ctx context.Context, c chatter, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, c.Send(line)
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	var err error
	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/typing":
		c.StartTyping()
	case "/stop":
		c.StopTyping()
	case "/focus":
		c.SetFocused(true)
	case "/blur":
		c.SetFocused(false)
	case "/accept":
		_, err = c.Accept(ctx)
	case "/start":
		_, err = c.Start(ctx)
	case "/complete":
		_, err = c.Complete(ctx)
	case "/paid":
		_, err = c.ConfirmPayment(ctx)
	case "/cancel":
		_, err = c.Cancel(ctx, rest)
	case "/bill":
		amount, receipt, _ := strings.Cut(rest, " ")
		d, perr := decimal.NewFromString(amount)
		if perr != nil {
			return false, fmt.Errorf("%w: /bill <amount> [receipt-url]", errUsage)
		}
		_, err = c.SubmitBill(ctx, d, strings.TrimSpace(receipt))
	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
	return false, err
}
