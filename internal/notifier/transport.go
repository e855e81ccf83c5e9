package notifier

import (
	"github.com/sirupsen/logrus"

	"github.com/ankityadav/uptimed/internal/config"
)

// FromConfig assembles the configured transports. It returns nil when none
// is configured, which disables notifications.
func FromConfig(cfg *config.Config, log logrus.FieldLogger) Transport {
	var transports MultiTransport

	if cfg.SMTP.Enabled() {
		transports = append(transports, NewSMTPTransport(cfg.SMTP))
		log.WithFields(logrus.Fields{"host": cfg.SMTP.Host, "port": cfg.SMTP.Port}).Info("smtp notifications enabled")
	}
	if cfg.Webhook.URL != "" {
		transports = append(transports, NewWebhookTransport(cfg.Webhook.URL, cfg.Webhook.Timeout))
		log.Info("webhook notifications enabled")
	}
	if cfg.Desktop.Enabled {
		transports = append(transports, NewDesktopTransport())
		log.Info("desktop notifications enabled")
	}

	switch len(transports) {
	case 0:
		log.Warn("no notification transport configured, alerts are disabled")
		return nil
	case 1:
		return transports[0]
	default:
		return transports
	}
}
