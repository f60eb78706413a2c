package notify

import (
	"context"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload() *EmergencyPayload {
	lat, lng := 40.7484, -73.9857
	fixAt := time.Date(2026, 3, 1, 22, 41, 0, 0, time.UTC)
	return &EmergencyPayload{
		SessionID:       "session-test",
		OwnerID:         "user-1",
		Reason:          "panic",
		LocationLabel:   "Hotel bar",
		LocationAddress: "350 5th Ave, New York",
		LastLatitude:    &lat,
		LastLongitude:   &lng,
		LastFixAt:       &fixAt,
		TriggeredAt:     fixAt.Add(30 * time.Second),
	}
}

func TestMailNotifierSendsPerGuardian(t *testing.T) {
	transport := NewMockMailTransport()
	n := NewMailNotifier(transport, "alerts@vairify.app")

	guardians := []Guardian{
		{ID: "g1", Name: "Dana", Email: "dana@example.com"},
		{ID: "g2", Name: "Sam", Email: "sam@example.com"},
		{ID: "g3", Name: "NoMail"},
	}

	results, err := n.Notify(context.Background(), testPayload(), guardians)
	require.NoError(t, err)

	// The guardian without an email is skipped entirely.
	require.Len(t, results, 2)
	assert.True(t, results[0].Delivered)
	assert.True(t, results[1].Delivered)
	assert.Equal(t, 2, transport.SentCount())

	last := transport.GetLastSentMail()
	require.NotNil(t, last)
	assert.Equal(t, []string{"sam@example.com"}, last.To)
	assert.Contains(t, string(last.Text), "panic")
	assert.Contains(t, string(last.Text), "Hotel bar")
	assert.Contains(t, string(last.Text), "40.748400")
}

func TestMailNotifierReportsFailures(t *testing.T) {
	transport := NewMockMailTransport()
	transport.FailWith(errors.New("relay refused"))
	n := NewMailNotifier(transport, "alerts@vairify.app")

	results, err := n.Notify(context.Background(), testPayload(), []Guardian{
		{ID: "g1", Name: "Dana", Email: "dana@example.com"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Delivered)
	assert.Contains(t, results[0].Error, "relay refused")
}

// blockingMailTransport hangs on Send until released, standing in for an
// unresponsive relay.
type blockingMailTransport struct {
	release chan struct{}
}

func (t *blockingMailTransport) Send(_ *email.Email) error {
	<-t.release
	return nil
}

func TestMailNotifierStopsAtAttemptDeadline(t *testing.T) {
	transport := &blockingMailTransport{release: make(chan struct{})}
	defer close(transport.release)
	n := NewMailNotifier(transport, "alerts@vairify.app")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	started := time.Now()
	results, err := n.Notify(ctx, testPayload(), []Guardian{
		{ID: "g1", Name: "Dana", Email: "dana@example.com"},
		{ID: "g2", Name: "Sam", Email: "sam@example.com"},
	})

	// The hung relay does not stall the attempt: Notify returns at the
	// deadline so the dispatcher's retry can run.
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, results)
	assert.Less(t, time.Since(started), time.Second)
}

func TestMailNotifierNoFixBody(t *testing.T) {
	transport := NewMockMailTransport()
	n := NewMailNotifier(transport, "alerts@vairify.app")

	payload := testPayload()
	payload.NoFix = true
	payload.LastLatitude = nil
	payload.LastLongitude = nil

	_, err := n.Notify(context.Background(), payload, []Guardian{
		{ID: "g1", Name: "Dana", Email: "dana@example.com"},
	})
	require.NoError(t, err)

	last := transport.GetLastSentMail()
	require.NotNil(t, last)
	assert.Contains(t, string(last.Text), "No recent location fix")
}
