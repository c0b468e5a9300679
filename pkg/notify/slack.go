package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// SlackSink posts alerts to a single configured Slack channel, adapted from
// the teacher's pkg/slack.Notifier. It drops the teacher's per-tenant
// channel routing, thread replies, modals, and DM lookups: this sink has
// exactly one audience, the platform operators channel, and exactly two
// message shapes.
type SlackSink struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewSlackSink constructs a SlackSink. If botToken is empty the sink is
// disabled: every post is a logged no-op rather than an error, the same
// degrade-gracefully behavior as the teacher's NewNotifier.
func NewSlackSink(botToken, channel string, logger *slog.Logger) *SlackSink {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &SlackSink{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the sink has a usable client and channel.
func (s *SlackSink) IsEnabled() bool {
	return s.client != nil && s.channel != ""
}

func billingAlertBlocks(alert BillingAlert) []goslack.Block {
	header := goslack.NewHeaderBlock(
		goslack.NewTextBlockObject(goslack.PlainTextType, "💳 "+alert.Title, true, false),
	)
	fields := []*goslack.TextBlockObject{
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Tenant:* %s", alert.TenantID), false, false),
	}
	blocks := []goslack.Block{header, goslack.NewSectionBlock(nil, fields, nil)}
	if alert.Detail != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, alert.Detail, false, false), nil, nil,
		))
	}
	return blocks
}

func nodeLostBlocks(alert NodeLostAlert) []goslack.Block {
	header := goslack.NewHeaderBlock(
		goslack.NewTextBlockObject(goslack.PlainTextType, "🔴 Fleet node lost", true, false),
	)
	fields := []*goslack.TextBlockObject{
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Node:* %s", alert.NodeID), false, false),
		goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Last heartbeat:* %s", alert.LastHeartbeatAt.Format("2006-01-02T15:04:05Z07:00")), false, false),
	}
	return []goslack.Block{header, goslack.NewSectionBlock(nil, fields, nil)}
}

// PostBillingAlert posts a billing alert to the configured channel.
func (s *SlackSink) PostBillingAlert(ctx context.Context, alert BillingAlert) error {
	if !s.IsEnabled() {
		s.logger.Debug("slack sink disabled, skipping billing alert", "tenant_id", alert.TenantID, "title", alert.Title)
		return nil
	}
	opts := []goslack.MsgOption{
		goslack.MsgOptionBlocks(billingAlertBlocks(alert)...),
		goslack.MsgOptionText(fmt.Sprintf("%s: %s", alert.Title, alert.TenantID), false),
	}
	if _, _, err := s.client.PostMessageContext(ctx, s.channel, opts...); err != nil {
		return fmt.Errorf("posting billing alert to slack: %w", err)
	}
	return nil
}

// PostNodeLost posts a node-lost alert to the configured channel.
func (s *SlackSink) PostNodeLost(ctx context.Context, alert NodeLostAlert) error {
	if !s.IsEnabled() {
		s.logger.Debug("slack sink disabled, skipping node-lost alert", "node_id", alert.NodeID)
		return nil
	}
	opts := []goslack.MsgOption{
		goslack.MsgOptionBlocks(nodeLostBlocks(alert)...),
		goslack.MsgOptionText("fleet node lost: "+alert.NodeID, false),
	}
	if _, _, err := s.client.PostMessageContext(ctx, s.channel, opts...); err != nil {
		return fmt.Errorf("posting node-lost alert to slack: %w", err)
	}
	return nil
}
