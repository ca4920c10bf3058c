package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// OrdersService covers the /orden endpoints.
type OrdersService struct {
	c *Client
}

// List returns every order visible to the caller.
func (s *OrdersService) List(ctx context.Context) ([]Order, error) {
	var orders []Order
	if err := s.c.getJSON(ctx, "/orden", nil, &orders); err != nil {
		return nil, fmt.Errorf("api: list orders: %w", err)
	}
	return orders, nil
}

// Get returns the order with the given database id.
func (s *OrdersService) Get(ctx context.Context, id int64) (*Order, error) {
	var o Order
	if err := s.c.getJSON(ctx, "/orden/"+strconv.FormatInt(id, 10), nil, &o); err != nil {
		return nil, fmt.Errorf("api: get order %d: %w", id, err)
	}
	return &o, nil
}

// GetByNumber returns the order with the given order number.
func (s *OrdersService) GetByNumber(ctx context.Context, number int64) (*Order, error) {
	var o Order
	if err := s.c.getJSON(ctx, "/orden/by-number/"+strconv.FormatInt(number, 10), nil, &o); err != nil {
		return nil, fmt.Errorf("api: get order number %d: %w", number, err)
	}
	return &o, nil
}

// Create submits a B2B order and returns what the backend stored.
func (s *OrdersService) Create(ctx context.Context, order *Order) (*Order, error) {
	var created Order
	if err := s.c.postJSON(ctx, "/orden/b2b", nil, order, &created); err != nil {
		return nil, fmt.Errorf("api: create order: %w", err)
	}
	return &created, nil
}

// LoadHistory returns the load samples recorded for an order, oldest
// first. A backend without the endpoint (404) yields an empty history.
func (s *OrdersService) LoadHistory(ctx context.Context, number int64) ([]LoadRecord, error) {
	var records []LoadRecord
	path := "/orden/by-number/" + url.PathEscape(strconv.FormatInt(number, 10)) + "/historial-carga"
	if err := s.c.getJSON(ctx, path, nil, &records); err != nil {
		if IsNotFound(err) {
			return []LoadRecord{}, nil
		}
		return nil, fmt.Errorf("api: load history of order %d: %w", number, err)
	}
	if records == nil {
		records = []LoadRecord{}
	}
	SortLoadRecords(records)
	return records, nil
}
