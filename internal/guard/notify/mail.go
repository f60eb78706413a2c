package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/jordan-wright/email"
)

// MailNotifier delivers emergency alerts to guardians with an email address.
// Guardians without one are skipped, not failed; another channel covers them.
type MailNotifier struct {
	transport MailTransporter
	sender    string
}

func NewMailNotifier(transport MailTransporter, sender string) *MailNotifier {
	return &MailNotifier{transport: transport, sender: sender}
}

func (n *MailNotifier) Name() string {
	return "mail"
}

func (n *MailNotifier) Notify(ctx context.Context, payload *EmergencyPayload, guardians []Guardian) ([]DeliveryResult, error) {
	results := make([]DeliveryResult, 0, len(guardians))

	for _, g := range guardians {
		if g.Email == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		e := email.NewEmail()
		e.From = n.sender
		e.To = []string{g.Email}
		e.Subject = fmt.Sprintf("EMERGENCY: safety alert for session %s", payload.SessionID)
		e.Text = []byte(renderAlertBody(payload, g))

		if err := n.sendBounded(ctx, e); err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			results = append(results, DeliveryResult{GuardianID: g.ID, Delivered: false, Error: err.Error()})
			continue
		}
		results = append(results, DeliveryResult{GuardianID: g.ID, Delivered: true})
	}

	return results, nil
}

// sendBounded runs the transport call off-goroutine so a hung relay cannot
// outlive the attempt's deadline. The orphaned send finishes or fails on its
// own; the caller stops waiting at the deadline and the retry can run.
func (n *MailNotifier) sendBounded(ctx context.Context, e *email.Email) error {
	done := make(chan error, 1)
	go func() {
		done <- n.transport.Send(e)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func renderAlertBody(payload *EmergencyPayload, g Guardian) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s,\n\n", g.Name)
	fmt.Fprintf(&b, "An emergency was raised at %s (trigger: %s).\n\n", payload.TriggeredAt.Format("15:04:05 MST, Jan 2"), payload.Reason)
	fmt.Fprintf(&b, "Meeting location: %s\n%s\n", payload.LocationLabel, payload.LocationAddress)
	if payload.Memo != "" {
		fmt.Fprintf(&b, "Note from the session: %s\n", payload.Memo)
	}

	if payload.NoFix || payload.LastLatitude == nil || payload.LastLongitude == nil {
		b.WriteString("\nNo recent location fix is available.\n")
	} else {
		fmt.Fprintf(&b, "\nLast known position: %.6f, %.6f", *payload.LastLatitude, *payload.LastLongitude)
		if payload.LastFixAt != nil {
			fmt.Fprintf(&b, " (as of %s)", payload.LastFixAt.Format("15:04:05"))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nPlease try to reach them immediately.\n")
	return b.String()
}
