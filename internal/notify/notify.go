// Package notify announces session outcomes to humans. Supports Slack
// and is extensible to other channels.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// Event describes a session outcome worth announcing.
type Event struct {
	SessionID string
	Title     string
	Outcome   string // published or abandoned
	Score     float64
	Attempts  int
	Message   string
}

// Notifier sends outcome notifications.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// SlackNotifier posts outcomes to a Slack channel.
type SlackNotifier struct {
	client  *slack.Client
	channel string
	logger  zerolog.Logger
}

// NewSlackNotifier creates a notifier posting to a specific channel.
func NewSlackNotifier(botToken, channel string, logger zerolog.Logger) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(botToken),
		channel: channel,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// Notify posts the event as a Slack message.
func (n *SlackNotifier) Notify(ctx context.Context, e Event) error {
	text := fmt.Sprintf("*%s* `%s`\nSession `%s` finished after %d attempt(s), score %.1f.",
		e.Title, e.Outcome, e.SessionID, e.Attempts, e.Score)
	if e.Message != "" {
		text += "\n" + e.Message
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return fmt.Errorf("slack notify: %w", err)
	}

	n.logger.Info().
		Str("channel", n.channel).
		Str("outcome", e.Outcome).
		Msg("notification sent")
	return nil
}

// MultiNotifier fans out to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(ns ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: ns}
}

func (m *MultiNotifier) Notify(ctx context.Context, e Event) error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, e); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// LogNotifier logs outcomes (useful for testing/dev).
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (l *LogNotifier) Notify(_ context.Context, e Event) error {
	l.logger.Info().
		Str("session_id", e.SessionID).
		Str("outcome", e.Outcome).
		Float64("score", e.Score).
		Int("attempts", e.Attempts).
		Msg(e.Message)
	return nil
}
