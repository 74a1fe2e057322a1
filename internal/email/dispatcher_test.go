package email

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

type fakeRecipients map[string]string

func (f fakeRecipients) Email(_ context.Context, userID string) (string, error) {
	return f[userID], nil
}

type fakeMailer struct {
	failures int
	sent     []string
}

func (f *fakeMailer) Send(_ context.Context, to, subject, _ string) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, to+": "+subject)
	return nil
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func newTestDispatcher(mailer Mailer) *Dispatcher {
	orders := fakeOrders{orderID: {ID: orderID, UserID: ownerID}}
	recipients := fakeRecipients{ownerID: "shopper@example.com"}
	return NewDispatcher(orders, recipients, mailer, fastRetry(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func payloadFor(t *testing.T, kind domain.EmailKind, id string) []byte {
	t.Helper()
	data, err := json.Marshal(domain.EmailRequestedEvent{Kind: kind, OrderID: id, UserID: ownerID})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	return data
}

func TestDispatcher_Handle(t *testing.T) {
	t.Run("sends after transient failures", func(t *testing.T) {
		mailer := &fakeMailer{failures: 2}
		d := newTestDispatcher(mailer)

		if err := d.Handle(context.Background(), nil, payloadFor(t, domain.EmailOrderShipping, orderID)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(mailer.sent) != 1 || mailer.sent[0] != "shopper@example.com: Order #22222222 has shipped" {
			t.Errorf("unexpected sent mail %v", mailer.sent)
		}
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		mailer := &fakeMailer{failures: 10}
		d := newTestDispatcher(mailer)

		if err := d.Handle(context.Background(), nil, payloadFor(t, domain.EmailOrderShipping, orderID)); err != nil {
			t.Fatalf("expected failure to be acknowledged, got %v", err)
		}
		if mailer.failures != 7 {
			t.Errorf("expected 3 attempts, got %d", 10-mailer.failures)
		}
	})

	t.Run("missing order is not retried", func(t *testing.T) {
		mailer := &fakeMailer{}
		d := newTestDispatcher(mailer)

		if err := d.Handle(context.Background(), nil, payloadFor(t, domain.EmailOrderShipping, "33333333-3333-3333-3333-333333333333")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(mailer.sent) != 0 {
			t.Errorf("expected nothing sent, got %v", mailer.sent)
		}
	})

	t.Run("malformed payload is dropped", func(t *testing.T) {
		mailer := &fakeMailer{}
		d := newTestDispatcher(mailer)

		if err := d.Handle(context.Background(), nil, []byte(`not json`)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := d.Handle(context.Background(), nil, payloadFor(t, "weird", orderID)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(mailer.sent) != 0 {
			t.Errorf("expected nothing sent, got %v", mailer.sent)
		}
	})
}
