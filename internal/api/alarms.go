package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Alarm is a temperature alarm raised by the backend for an order.
type Alarm struct {
	ID          int64    `json:"id"`
	OrderNumber int64    `json:"numeroOrden,omitempty"`
	Temperature *float64 `json:"temperatura,omitempty"`
	Threshold   *float64 `json:"temperaturaUmbral,omitempty"`
	DateTime    string   `json:"fechaHora,omitempty"`
	Status      string   `json:"estado,omitempty"`
	Accepted    bool     `json:"aceptada,omitempty"`
	Description string   `json:"descripcion,omitempty"`
}

// AlarmsService covers alarm listing and acknowledgement.
type AlarmsService struct {
	c *Client
}

// List returns the alarms known to the backend.
func (s *AlarmsService) List(ctx context.Context) ([]Alarm, error) {
	var alarms []Alarm
	if err := s.c.getJSON(ctx, "/alarms", nil, &alarms); err != nil {
		return nil, fmt.Errorf("api: list alarms: %w", err)
	}
	return alarms, nil
}

// Accept acknowledges an alarm so its order can continue loading.
func (s *AlarmsService) Accept(ctx context.Context, id int64) error {
	q := url.Values{"idAlarm": {strconv.FormatInt(id, 10)}}
	if err := s.c.postJSON(ctx, "/orden/accept-alarm", q, nil, nil); err != nil {
		return fmt.Errorf("api: accept alarm %d: %w", id, err)
	}
	return nil
}
