package pasugo

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// The socket does not push task transitions, so the task is re-fetched
// every PollInterval while the chat is open.

func (c *Client) schedulePollLocked(s *session) {
	if c.cfg.PollInterval <= 0 {
		return
	}
	c.afterLocked(s, timerPoll, c.cfg.PollInterval, func() { c.poll(s) })
}

func (c *Client) poll(s *session) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RequestTimeout)
	task, err := c.api.GetTask(ctx, s.taskID)
	cancel()

	var out emitter
	c.mu.Lock()
	if c.sess != s || s.state == StateClosed {
		c.mu.Unlock()
		return
	}
	if err != nil {
		// A failed poll never ends the chat; the next tick retries.
		c.metrics.pollFailed()
		s.log.Debug().Err(err).Msg("task poll failed")
	} else {
		c.applyTaskLocked(s, *task, &out)
	}
	if s.state != StateClosed {
		c.schedulePollLocked(s)
	}
	c.mu.Unlock()
	out.deliver(c.renderer)
}

// applyTaskLocked stores a fresh snapshot. A terminal status ends the chat.
func (c *Client) applyTaskLocked(s *session, t TaskSnapshot, out *emitter) {
	prev := s.task
	s.task = &t
	if prev == nil || prev.changed(t) {
		if prev != nil && prev.Status != t.Status {
			s.log.Info().Str("from", string(prev.Status)).Str("to", string(t.Status)).Msg("task status changed")
		}
		out.emit(func(r Renderer) { r.TaskChanged(t) })
	}
	if t.Status.Terminal() {
		c.endTaskLocked(s, out)
	}
}

// endTaskLocked renders the one-time notice and closes the chat read-only.
// History stays available through History.
func (c *Client) endTaskLocked(s *session, out *emitter) {
	if s.state == StateClosed {
		return
	}
	n := Notice{Kind: NoticeTaskCompleted, Text: "This task has been completed. The chat is now read-only."}
	if s.task != nil && s.task.Status == TaskCancelled {
		n = Notice{Kind: NoticeTaskCancelled, Text: "This task was cancelled. The chat is now read-only."}
	}
	out.emit(func(r Renderer) { r.Notice(n) })
	c.closeLocked(s, ReasonTaskEnded, nil, out)
}

// --------------------------------------------------------------------------
// Task actions
// --------------------------------------------------------------------------

// Accept assigns the task to the current rider.
func (c *Client) Accept(ctx context.Context) (*TaskSnapshot, error) {
	return c.act(ctx, ActionAccept, nil)
}

// Start marks the task in progress.
func (c *Client) Start(ctx context.Context) (*TaskSnapshot, error) {
	return c.act(ctx, ActionStart, nil)
}

// Complete marks the task completed. The chat closes read-only right away.
func (c *Client) Complete(ctx context.Context) (*TaskSnapshot, error) {
	return c.act(ctx, ActionComplete, nil)
}

// Cancel cancels the task.
func (c *Client) Cancel(ctx context.Context, reason string) (*TaskSnapshot, error) {
	return c.act(ctx, ActionCancel, CancelRequest{Reason: reason})
}

// SubmitBill submits the purchase amount of a buy-for-me task.
func (c *Client) SubmitBill(ctx context.Context, amount decimal.Decimal, receiptURL string) (*TaskSnapshot, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("pasugo: bill amount must be positive, got %s", amount)
	}
	return c.act(ctx, ActionSubmitBill, SubmitBillRequest{Amount: amount, ReceiptURL: receiptURL})
}

// ConfirmPayment confirms the customer paid.
func (c *Client) ConfirmPayment(ctx context.Context) (*TaskSnapshot, error) {
	return c.act(ctx, ActionConfirmPayment, nil)
}

// act calls a lifecycle endpoint and feeds the result through the same
// path as a poll.
func (c *Client) act(ctx context.Context, action TaskAction, body any) (*TaskSnapshot, error) {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return nil, ErrNotConnected
	}

	task, err := c.api.TaskAction(ctx, s.taskID, action, body)
	if err != nil {
		return nil, fmt.Errorf("%s task: %w", action, err)
	}

	var out emitter
	c.mu.Lock()
	if c.sess == s && s.state != StateClosed {
		c.applyTaskLocked(s, *task, &out)
	}
	c.mu.Unlock()
	out.deliver(c.renderer)
	return task, nil
}
