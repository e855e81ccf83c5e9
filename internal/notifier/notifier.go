// Package notifier delivers alert and recovery messages and throttles
// repeated alerts for the same open incident.
package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/gen2brain/beeep"

	"github.com/ankityadav/uptimed/internal/storage"
)

// Message is one outbound notification.
type Message struct {
	To       string
	Subject  string
	Body     string
	Recovery bool
}

// Transport delivers messages. Implementations must be safe for concurrent
// use; the same transport is shared by every poller.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

type RequestKind int

const (
	AlertRequest RequestKind = iota
	RecoveryRequest
)

// Request asks the throttler to notify about an incident transition.
type Request struct {
	Kind            RequestKind
	IncidentKind    storage.Outcome
	Description     string
	DurationMinutes int
}

// DesktopTransport raises a local desktop notification. Useful for
// single-host installs; To is ignored.
type DesktopTransport struct {
	alert  func(title, message string) error
	notify func(title, message string) error
}

func NewDesktopTransport() *DesktopTransport {
	return &DesktopTransport{
		alert:  func(title, message string) error { return beeep.Alert(title, message, "") },
		notify: func(title, message string) error { return beeep.Notify(title, message, "") },
	}
}

func (d *DesktopTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	show := d.alert
	if msg.Recovery {
		show = d.notify
	}
	if err := show(msg.Subject, msg.Body); err != nil {
		return fmt.Errorf("desktop notification: %w", err)
	}
	return nil
}

// MultiTransport fans a message out to every member. All members are tried;
// the returned error joins the individual failures.
type MultiTransport []Transport

func (m MultiTransport) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
