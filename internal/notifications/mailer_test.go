package notifications

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"gopkg.in/gomail.v2"

	"github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/services"
)

type captureSender struct {
	messages []*gomail.Message
	fail     bool
}

func (c *captureSender) DialAndSend(msgs ...*gomail.Message) error {
	if c.fail {
		return errors.New("smtp down")
	}
	c.messages = append(c.messages, msgs...)
	return nil
}

func messageBody(t *testing.T, msg *gomail.Message) string {
	t.Helper()
	var raw strings.Builder
	if _, err := msg.WriteTo(&raw); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	return raw.String()
}

func TestMailerSendOrderConfirmation(t *testing.T) {
	sender := &captureSender{}
	mailer := newMailerWithSender(sender, "orders@zenithcart.example")

	err := mailer.SendOrderConfirmation(context.Background(), services.OrderNotification{
		Email:       "asha@example.com",
		UserName:    "Asha Rao",
		OrderNumber: "ORD-000042",
		Status:      domain.OrderStatusPlaced,
		Total:       decimal.RequireFromString("180.00"),
		Items: []domain.OrderItem{
			{Name: "Graphic Tee", Quantity: 2, Price: decimal.RequireFromString("50.00")},
		},
	})
	if err != nil {
		t.Fatalf("SendOrderConfirmation: %v", err)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.messages))
	}

	msg := sender.messages[0]
	if got := msg.GetHeader("To"); len(got) != 1 || got[0] != "asha@example.com" {
		t.Fatalf("unexpected recipient %v", got)
	}
	if got := msg.GetHeader("Subject"); len(got) != 1 || got[0] != "Order ORD-000042 confirmed" {
		t.Fatalf("unexpected subject %v", got)
	}
	body := messageBody(t, msg)
	if !strings.Contains(body, "Graphic Tee x2") {
		t.Fatalf("expected item line in body:\n%s", body)
	}
	if !strings.Contains(body, "180.00") {
		t.Fatalf("expected total in body:\n%s", body)
	}
}

func TestMailerSendRefundUpdate(t *testing.T) {
	sender := &captureSender{}
	mailer := newMailerWithSender(sender, "orders@zenithcart.example")

	err := mailer.SendRefundUpdate(context.Background(), services.RefundNotification{
		Email:       "asha@example.com",
		OrderNumber: "ORD-000042",
		RefundID:    "rfnd_1",
		Amount:      decimal.RequireFromString("100.00"),
		Status:      domain.RefundStatusProcessed,
	})
	if err != nil {
		t.Fatalf("SendRefundUpdate: %v", err)
	}
	body := messageBody(t, sender.messages[0])
	if !strings.Contains(body, "rfnd_1") || !strings.Contains(body, "100.00") {
		t.Fatalf("expected refund reference and amount in body:\n%s", body)
	}
}

func TestMailerSendErrors(t *testing.T) {
	mailer := newMailerWithSender(&captureSender{fail: true}, "orders@zenithcart.example")
	if err := mailer.SendWelcome(context.Background(), "asha@example.com", "Asha"); err == nil {
		t.Fatal("expected send failure to surface")
	}

	mailer = newMailerWithSender(&captureSender{}, "orders@zenithcart.example")
	if err := mailer.SendWelcome(context.Background(), "   ", "Asha"); err == nil {
		t.Fatal("expected missing recipient to fail")
	}
}

func TestNewMailerValidatesConfig(t *testing.T) {
	if _, err := NewMailer(Config{From: "orders@zenithcart.example"}); err == nil {
		t.Fatal("expected missing host to fail")
	}
	if _, err := NewMailer(Config{Host: "smtp.example.com"}); err == nil {
		t.Fatal("expected missing from address to fail")
	}
	mailer, err := NewMailer(Config{Host: "smtp.example.com", From: "orders@zenithcart.example"})
	if err != nil {
		t.Fatalf("NewMailer: %v", err)
	}
	if mailer.sender == nil {
		t.Fatal("expected a dialer to be configured")
	}
}
