package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/nightjarlabs/boxoffice/internal/domain"
)

// Config configures the SMTP mailer.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends customer-facing order mail over SMTP. Mail is best
// effort: callers log failures and move on.
type Mailer struct {
	cfg    Config
	logger *slog.Logger
}

func NewMailer(cfg Config, logger *slog.Logger) *Mailer {
	return &Mailer{
		cfg:    cfg,
		logger: logger.With("component", "mailer"),
	}
}

// SendOrderConfirmation mails the paid order with its ticket codes.
func (m *Mailer) SendOrderConfirmation(ctx context.Context, o *domain.Order, tickets []*domain.Ticket) error {
	if o.Owner == nil {
		return fmt.Errorf("order %s has no owner to mail", o.PublicReference)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\r\n\r\n", o.Owner.Name)
	fmt.Fprintf(&b, "Thanks for your order %s. Your tickets:\r\n\r\n", o.PublicReference)
	for _, t := range tickets {
		fmt.Fprintf(&b, "  %s — code %s\r\n", productTitle(o, t.ProductID), t.UniqueCode)
	}
	fmt.Fprintf(&b, "\r\nTotal: €%.2f\r\n", float64(o.AmountCents)/100)

	subject := fmt.Sprintf("Your tickets for order %s", o.PublicReference)
	return m.send(ctx, o.Owner.Email, subject, b.String())
}

// SendOrderReservation mails a reservation notice with a payment link
// reminder.
func (m *Mailer) SendOrderReservation(ctx context.Context, o *domain.Order) error {
	if o.Owner == nil {
		return fmt.Errorf("order %s has no owner to mail", o.PublicReference)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\r\n\r\n", o.Owner.Name)
	fmt.Fprintf(&b, "Your reservation %s is confirmed.\r\n", o.PublicReference)
	fmt.Fprintf(&b, "Complete the payment of €%.2f before it expires.\r\n", float64(o.AmountCents)/100)

	subject := fmt.Sprintf("Reservation %s", o.PublicReference)
	return m.send(ctx, o.Owner.Email, subject, b.String())
}

// SendOrderPaymentError tells the customer a checkout attempt failed.
func (m *Mailer) SendOrderPaymentError(ctx context.Context, o *domain.Order) error {
	if o.Owner == nil {
		return fmt.Errorf("order %s has no owner to mail", o.PublicReference)
	}

	body := fmt.Sprintf(
		"Hi %s,\r\n\r\nThe payment for order %s could not be started. No money was taken. Please try again.\r\n",
		o.Owner.Name, o.PublicReference,
	)

	subject := fmt.Sprintf("Payment problem with order %s", o.PublicReference)
	return m.send(ctx, o.Owner.Email, subject, body)
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		m.cfg.From, to, subject, body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}

	m.logger.Info("mail sent", "to", to, "subject", subject)

	return nil
}

func productTitle(o *domain.Order, productID int64) string {
	for _, line := range o.Products {
		if line.ProductID == productID {
			return line.Title
		}
	}
	return "ticket"
}
