package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/ariefcatur/go-rental-settlement/internal/logger"
	"github.com/ariefcatur/go-rental-settlement/internal/retry"
)

type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type SendGridSender struct {
	client    mailClient
	fromEmail string
	fromName  string
}

func NewSendGridSender(apiKey, fromEmail, fromName string) *SendGridSender {
	return &SendGridSender{client: sendgrid.NewSendClient(apiKey), fromEmail: fromEmail, fromName: fromName}
}

func (s *SendGridSender) SendRentalConfirmation(ctx context.Context, c Confirmation) error {
	p := c.Rental
	if p.CustomerEmail == "" {
		return retry.Permanent{Err: fmt.Errorf("rental %s has no customer email", p.RentalID)}
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(p.CustomerName, p.CustomerEmail)
	subject := fmt.Sprintf("Your rental %s is confirmed", p.RentalID)
	plain, html := confirmationBody(c)

	resp, err := s.client.SendWithContext(ctx, mail.NewSingleEmail(from, subject, to, plain, html))
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("sendgrid error: status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return retry.Permanent{Err: fmt.Errorf("sendgrid rejected: status %d, body: %s", resp.StatusCode, resp.Body)}
	}
	return nil
}

func confirmationBody(c Confirmation) (string, string) {
	p := c.Rental
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nYour rental from %s to %s is confirmed.\n",
		p.CustomerName, p.Start.Format("02 Jan 2006 15:04"), p.End.Format("02 Jan 2006 15:04"))
	fmt.Fprintf(&b, "Total: %s %s, deposit paid: %s %s.\n", p.Total, p.Currency, p.Deposit, p.Currency)
	if c.ContractURL != "" {
		fmt.Fprintf(&b, "Your contract: %s\n", c.ContractURL)
	}
	plain := b.String()
	html := "<html><body><p>" + strings.ReplaceAll(plain, "\n", "<br>") + "</p></body></html>"
	return plain, html
}

// LogSender logs instead of sending. It is the default when no SendGrid key is set.
type LogSender struct{}

func (LogSender) SendRentalConfirmation(ctx context.Context, c Confirmation) error {
	logger.InfoContext(ctx, "confirmation email (not sent)",
		"rental_id", c.Rental.RentalID, "to", c.Rental.CustomerEmail, "contract_url", c.ContractURL)
	return nil
}
