package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/gomail.v2"

	"github.com/zenithcart/api/internal/services"
)

// messageSender abstracts the SMTP dialer so tests can capture messages.
type messageSender interface {
	DialAndSend(msgs ...*gomail.Message) error
}

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer renders and sends transactional emails over SMTP.
type Mailer struct {
	sender  messageSender
	from    string
	printer *message.Printer
}

// NewMailer constructs a Mailer with a real SMTP dialer.
func NewMailer(cfg Config) (*Mailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("mailer: smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("mailer: from address is required")
	}
	port := cfg.Port
	if port <= 0 {
		port = 587
	}
	return &Mailer{
		sender:  gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password),
		from:    strings.TrimSpace(cfg.From),
		printer: message.NewPrinter(language.English),
	}, nil
}

// newMailerWithSender is the test seam.
func newMailerWithSender(sender messageSender, from string) *Mailer {
	return &Mailer{
		sender:  sender,
		from:    from,
		printer: message.NewPrinter(language.English),
	}
}

var _ services.NotificationSender = (*Mailer)(nil)

// SendOrderConfirmation emails the order summary after placement.
func (m *Mailer) SendOrderConfirmation(ctx context.Context, note services.OrderNotification) error {
	subject := fmt.Sprintf("Order %s confirmed", note.OrderNumber)
	var body strings.Builder
	greet(&body, note.UserName)
	fmt.Fprintf(&body, "Thanks for your order. We have received order %s.\n\n", note.OrderNumber)
	for _, item := range note.Items {
		fmt.Fprintf(&body, "  %s x%d  %s\n", item.Name, item.Quantity, m.formatINR(item.UnitPrice()))
	}
	fmt.Fprintf(&body, "\nOrder total: %s\n", m.formatINR(note.Total))
	return m.send(ctx, note.Email, subject, body.String())
}

// SendOrderStatusUpdate emails lifecycle changes, including cancellation.
func (m *Mailer) SendOrderStatusUpdate(ctx context.Context, note services.OrderNotification) error {
	subject := fmt.Sprintf("Order %s is now %s", note.OrderNumber, note.Status)
	var body strings.Builder
	greet(&body, note.UserName)
	fmt.Fprintf(&body, "Your order %s is now %s.\n", note.OrderNumber, note.Status)
	if note.Total.IsPositive() {
		fmt.Fprintf(&body, "Remaining order total: %s\n", m.formatINR(note.Total))
	}
	return m.send(ctx, note.Email, subject, body.String())
}

// SendRefundUpdate emails refund progress from gateway reconciliation.
func (m *Mailer) SendRefundUpdate(ctx context.Context, note services.RefundNotification) error {
	subject := fmt.Sprintf("Refund update for order %s", note.OrderNumber)
	body := fmt.Sprintf(
		"A refund of %s for order %s is %s.\nRefund reference: %s\n",
		m.formatINR(note.Amount), note.OrderNumber, note.Status, note.RefundID,
	)
	return m.send(ctx, note.Email, subject, body)
}

// SendWelcome emails a newly registered account.
func (m *Mailer) SendWelcome(ctx context.Context, email string, userName string) error {
	var body strings.Builder
	greet(&body, userName)
	body.WriteString("Welcome aboard. Your account is ready.\n")
	return m.send(ctx, email, "Welcome to ZenithCart", body.String())
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	if m == nil || m.sender == nil {
		return errors.New("mailer: not initialised")
	}
	recipient := strings.TrimSpace(to)
	if recipient == "" {
		return errors.New("mailer: recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("mailer: send %q: %w", subject, err)
	}
	return nil
}

func (m *Mailer) formatINR(amount decimal.Decimal) string {
	value, _ := amount.Float64()
	return m.printer.Sprintf("₹%.2f", value)
}

func greet(b *strings.Builder, name string) {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		fmt.Fprintf(b, "Hi %s,\n\n", trimmed)
		return
	}
	b.WriteString("Hi,\n\n")
}
