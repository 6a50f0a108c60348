package service

import (
	"context"
	"fmt"
	"strings"

	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/logger"
	"rentcar-backend/internal/utils"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type emailService struct {
	apiKey    string
	fromEmail string
	fromName  string
}

// NewEmailService sends booking mail through SendGrid. Without an API key messages are only logged.
func NewEmailService(apiKey, fromEmail, fromName string) EmailService {
	return &emailService{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *emailService) SendBookingConfirmation(ctx context.Context, b *domain.Booking, vehicleName string) error {
	subject := fmt.Sprintf("Booking %s confirmed", b.BookingNumber)

	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n", b.Guest.FirstName)
	fmt.Fprintf(&body, "Your booking of %s from %s to %s is confirmed.\n\n", vehicleName,
		b.Range.Start.Format(utils.DateLayout), b.Range.End.Format(utils.DateLayout))
	fmt.Fprintf(&body, "Booking number: %s\n", b.BookingNumber)
	fmt.Fprintf(&body, "Total: %s\n", b.Price.TotalAmount.StringFixed(2))
	fmt.Fprintf(&body, "Paid online: %s\n", b.Price.OnlineAmount.StringFixed(2))
	if b.Price.CashAmount.IsPositive() {
		fmt.Fprintf(&body, "Due at pickup: %s\n", b.Price.CashAmount.StringFixed(2))
	}
	if b.Deposit.IsPositive() {
		fmt.Fprintf(&body, "Refundable deposit at pickup: %s\n", b.Deposit.StringFixed(2))
	}
	body.WriteString("\nBest regards,\nThe Rentcar Team")

	return s.send(ctx, b.Contact.Email, b.Guest.FirstName+" "+b.Guest.LastName, subject, body.String())
}

func (s *emailService) SendPaymentFailedNotification(ctx context.Context, b *domain.Booking, reason string) error {
	subject := fmt.Sprintf("Payment for booking %s was not completed", b.BookingNumber)
	body := fmt.Sprintf("Hello %s,\n\n%s. Your dates stay reserved for a short time; please retry the payment to keep them.\n\nBest regards,\nThe Rentcar Team",
		b.Guest.FirstName, reason)
	return s.send(ctx, b.Contact.Email, b.Guest.FirstName+" "+b.Guest.LastName, subject, body)
}

func (s *emailService) send(ctx context.Context, to, toName, subject, plainText string) error {
	if s.apiKey == "" {
		logger.InfoContext(ctx, "Email delivery disabled, skipping", "to", to, "subject", subject)
		return nil
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	recipient := mail.NewEmail(toName, to)
	message := mail.NewSingleEmailPlainText(from, subject, recipient, plainText)

	logger.ExternalServiceCallContext(ctx, "sendgrid", "Send", "to", to, "subject", subject)
	client := sendgrid.NewSendClient(s.apiKey)
	response, err := client.SendWithContext(ctx, message)
	logger.ExternalServiceResult("sendgrid", "Send", err)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}
