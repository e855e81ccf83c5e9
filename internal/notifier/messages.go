package notifier

import (
	"fmt"
	"strings"

	"github.com/ankityadav/uptimed/internal/storage"
)

var kindLabels = map[storage.Outcome]string{
	storage.OutcomeTimeout:         "is timing out",
	storage.OutcomeOffline:         "is DOWN",
	storage.OutcomeStatusCodeError: "returned an unexpected status",
}

func alertMessage(to string, t storage.Target, kind storage.Outcome, description string) Message {
	label, ok := kindLabels[kind]
	if !ok {
		label = "is failing"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Monitor: %s\n", t.Name)
	fmt.Fprintf(&b, "URL: %s\n", t.URL)
	fmt.Fprintf(&b, "Failure: %s\n", kind)
	if description != "" {
		fmt.Fprintf(&b, "Details: %s\n", description)
	}

	return Message{
		To:      to,
		Subject: fmt.Sprintf("🔴 %s %s", t.Name, label),
		Body:    b.String(),
	}
}

func recoveryMessage(to string, t storage.Target, durationMinutes int) Message {
	return Message{
		To:       to,
		Subject:  fmt.Sprintf("✅ %s is UP", t.Name),
		Body:     fmt.Sprintf("Monitor: %s\nURL: %s has recovered after %s of downtime.\n", t.Name, t.URL, formatMinutes(durationMinutes)),
		Recovery: true,
	}
}

func formatMinutes(m int) string {
	switch {
	case m < 1:
		return "less than a minute"
	case m == 1:
		return "1 minute"
	case m < 60:
		return fmt.Sprintf("%d minutes", m)
	default:
		return fmt.Sprintf("%dh %dm", m/60, m%60)
	}
}
