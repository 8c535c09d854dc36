package app

import (
	"fmt"

	"github.com/bissquit/incident-console/internal/config"
	"github.com/bissquit/incident-console/internal/notifications"
	"github.com/bissquit/incident-console/internal/notifications/kafka"
	"github.com/bissquit/incident-console/internal/notifications/mattermost"
)

// setupNotifier builds the publisher chain. The log publisher is always on;
// Mattermost needs a webhook and Kafka needs to be enabled explicitly.
func (a *App) setupNotifier() (*notifications.Notifier, error) {
	cfg := a.config.Notifications

	publishers := []notifications.Publisher{notifications.LogPublisher{}}
	if cfg.Mattermost.WebhookURL != "" {
		publishers = append(publishers, mattermost.NewSender(mattermostConfig(cfg.Mattermost)))
	}
	if cfg.Kafka.Enabled {
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
			Linger:   cfg.Kafka.Linger,
		})
		if err != nil {
			return nil, fmt.Errorf("create kafka publisher: %w", err)
		}
		a.kafka = p
		publishers = append(publishers, p)
	}

	renderer, err := notifications.NewRenderer()
	if err != nil {
		return nil, err
	}

	a.dispatcher = notifications.NewDispatcher(publishers...)
	a.logger.Info("notifications enabled", "publishers", a.dispatcher.Publishers())
	return notifications.NewNotifier(renderer, a.dispatcher, cfg.BaseURL), nil
}

func mattermostConfig(c config.MattermostConfig) mattermost.Config {
	return mattermost.Config{
		WebhookURL:        c.WebhookURL,
		Username:          c.Username,
		IconURL:           c.IconURL,
		Channel:           c.Channel,
		MentionOnCritical: c.MentionOnCritical,
		Timeout:           c.Timeout,
	}
}
