package notifier

import (
	"context"
	"fmt"

	"github.com/pico-cs/mesh-ingest/internal/topicfilter"
	"github.com/slack-go/slack"
)

// ChannelIDs maps a topicfilter.Channel to the Slack channel id the
// Notifier posts to. Populated from configuration at startup.
type ChannelIDs map[topicfilter.Channel]string

// SlackNotifier posts flushed MessageGroups to Slack, one channel per
// topicfilter.Channel. Adapted from a generic chat.Sender Slack
// adapter: a thin wrapper around *slack.Client.PostMessageContext,
// with no retry or queueing of its own — group flushing already runs
// off the ingest path, so a blocked post only delays a chat message,
// never a packet write.
type SlackNotifier struct {
	client   *slack.Client
	channels ChannelIDs
}

// NewSlackNotifier builds a SlackNotifier posting with token, routing
// by ChannelIDs.
func NewSlackNotifier(token string, channels ChannelIDs) *SlackNotifier {
	return &SlackNotifier{client: slack.New(token), channels: channels}
}

func (s *SlackNotifier) Notify(ctx context.Context, msg Message) error {
	channelID, ok := s.channels[msg.Channel]
	if !ok || channelID == "" {
		return fmt.Errorf("no slack channel configured for %s", msg.Channel)
	}

	_, _, err := s.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(Render(msg), false))
	if err != nil {
		return fmt.Errorf("post to slack channel %s: %w", msg.Channel, err)
	}
	return nil
}

var _ Notifier = (*SlackNotifier)(nil)
