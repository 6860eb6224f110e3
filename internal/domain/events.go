package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderEventType string

const (
	OrderEventCreated       OrderEventType = "order.created"
	OrderEventStatusChanged OrderEventType = "order.status_changed"
)

type OrderEvent struct {
	Type           OrderEventType  `json:"type"`
	OrderID        string          `json:"order_id"`
	OrderCode      string          `json:"order_code"`
	Email          string          `json:"email"`
	FullName       string          `json:"full_name"`
	Status         Status          `json:"status"`
	PreviousStatus Status          `json:"previous_status,omitempty"`
	CancelReason   *string         `json:"cancel_reason,omitempty"`
	Total          decimal.Decimal `json:"total"`
	Timestamp      time.Time       `json:"timestamp"`
}

func NewOrderCreatedEvent(o Order, at time.Time) OrderEvent {
	return newOrderEvent(OrderEventCreated, o, at)
}

func NewStatusChangedEvent(o Order, previous Status, at time.Time) OrderEvent {
	event := newOrderEvent(OrderEventStatusChanged, o, at)
	event.PreviousStatus = previous
	return event
}

func newOrderEvent(t OrderEventType, o Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:         t,
		OrderID:      o.ID,
		OrderCode:    o.OrderCode,
		Email:        o.PersonalInfo.Email,
		FullName:     o.PersonalInfo.FullName,
		Status:       o.Status,
		CancelReason: o.CancelReason,
		Total:        o.Payment.Total,
		Timestamp:    at.UTC(),
	}
}

func (e OrderEvent) EventType() string {
	return string(e.Type)
}
