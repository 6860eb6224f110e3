// Package notifier turns order events into customer e-mails.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
	"github.com/joao-fontenele/primeuro-storefront/internal/messaging"
)

type NotificationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

type email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Handle sends at most one e-mail per event. Events that cannot be decoded
// are poison; events with nothing to tell the customer are skipped.
func (h *NotificationHandler) Handle(ctx context.Context, msg messaging.Message) error {
	var event domain.OrderEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("%w: decode order event: %v", messaging.ErrPoisonMessage, err)
	}
	if msg.EventType != "" && msg.EventType != string(event.Type) {
		return fmt.Errorf("%w: header says %q, payload says %q", messaging.ErrPoisonMessage, msg.EventType, event.Type)
	}

	h.logger.Info("processing order event", "type", event.Type, "order_id", event.OrderID, "status", event.Status)

	if event.Email == "" {
		h.logger.Warn("order has no email address, skipping", "order_id", event.OrderID)
		return nil
	}

	var mail email
	switch event.Type {
	case domain.OrderEventCreated:
		mail = confirmationEmail(event)
	case domain.OrderEventStatusChanged:
		var ok bool
		if mail, ok = statusEmail(event); !ok {
			h.logger.Info("no email for status", "order_id", event.OrderID, "status", event.Status)
			return nil
		}
	default:
		return fmt.Errorf("%w: unknown event type %q", messaging.ErrPoisonMessage, event.Type)
	}

	if err := h.sendEmail(ctx, mail); err != nil {
		h.logger.Error("failed to send email", "error", err, "order_id", event.OrderID, "subject", mail.Subject)
		return fmt.Errorf("send email for order %s: %w", event.OrderID, err)
	}

	h.logger.Info("email sent", "order_id", event.OrderID, "subject", mail.Subject)
	return nil
}

func confirmationEmail(event domain.OrderEvent) email {
	return email{
		To:      event.Email,
		Subject: "Order received: " + event.OrderCode,
		Body: fmt.Sprintf("Hi %s, we received your order %s. Total due: €%s. Keep the order code for any question about your delivery.",
			greetingName(event), event.OrderCode, event.Total.StringFixed(2)),
	}
}

// statusEmail reports false for statuses the customer is not told about.
func statusEmail(event domain.OrderEvent) (email, bool) {
	mail := email{To: event.Email}

	switch event.Status {
	case domain.StatusCanceled:
		mail.Subject = "Order canceled: " + event.OrderCode
		mail.Body = fmt.Sprintf("Hi %s, your order %s was canceled.", greetingName(event), event.OrderCode)
		if event.CancelReason != nil {
			mail.Body += " Reason: " + *event.CancelReason + "."
		}
	case domain.StatusDeliveryPaid:
		mail.Subject = "Delivery payment received: " + event.OrderCode
		mail.Body = fmt.Sprintf("Hi %s, we received the delivery payment for order %s.", greetingName(event), event.OrderCode)
	case domain.StatusShipped:
		mail.Subject = "Order shipped: " + event.OrderCode
		mail.Body = fmt.Sprintf("Hi %s, your order %s is on its way.", greetingName(event), event.OrderCode)
	case domain.StatusCompleted, domain.StatusPayedFull:
		mail.Subject = "Order completed: " + event.OrderCode
		mail.Body = fmt.Sprintf("Hi %s, order %s is fully paid. Thank you for shopping with PRIMEURO.", greetingName(event), event.OrderCode)
	default:
		return email{}, false
	}

	return mail, true
}

func greetingName(event domain.OrderEvent) string {
	if event.FullName == "" {
		return "there"
	}
	return event.FullName
}

func (h *NotificationHandler) sendEmail(ctx context.Context, mail email) error {
	data, err := json.Marshal(mail)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
