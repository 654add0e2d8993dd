package provisioning

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	apperrors "airswitch/internal/errors"

	"go.uber.org/zap"
)

// Number order statuses reported by Telnyx.
const (
	NumberOrderPending = "pending"
	NumberOrderSuccess = "success"
	NumberOrderFailure = "failure"
)

type NumberQuery struct {
	CountryCode string
	Limit       int
	Features    []string
}

type NumberCost struct {
	UpfrontCost string `json:"upfront_cost"`
	MonthlyCost string `json:"monthly_cost"`
	Currency    string `json:"currency"`
}

type AvailableNumber struct {
	PhoneNumber string     `json:"phone_number"`
	Features    []string   `json:"features"`
	Region      string     `json:"region,omitempty"`
	Cost        NumberCost `json:"cost"`
}

type NumberOrder struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	PhoneNumber string `json:"phone_number"`
}

type OutboundMessage struct {
	From string
	To   string
	Text string
}

type SentMessage struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Parts  int    `json:"parts"`
}

var (
	_ NumberGateway = (*TelnyxClient)(nil)
	_ Messenger     = (*TelnyxClient)(nil)
)

type telnyxAvailableNumber struct {
	PhoneNumber string `json:"phone_number"`
	Features    []struct {
		Name string `json:"name"`
	} `json:"features"`
	RegionInformation []struct {
		RegionType string `json:"region_type"`
		RegionName string `json:"region_name"`
	} `json:"region_information"`
	CostInformation NumberCost `json:"cost_information"`
}

func (c *TelnyxClient) SearchNumbers(ctx context.Context, q NumberQuery) ([]AvailableNumber, error) {
	params := url.Values{}
	params.Set("filter[country_code]", q.CountryCode)
	if q.Limit > 0 {
		params.Set("filter[limit]", strconv.Itoa(q.Limit))
	}
	for _, f := range q.Features {
		params.Add("filter[features][]", f)
	}

	var data []telnyxAvailableNumber
	if err := c.call(ctx, http.MethodGet, "/available_phone_numbers?"+params.Encode(), nil, &data); err != nil {
		return nil, c.classify("search numbers", err)
	}

	out := make([]AvailableNumber, 0, len(data))
	for _, n := range data {
		num := AvailableNumber{PhoneNumber: n.PhoneNumber, Cost: n.CostInformation}
		for _, f := range n.Features {
			num.Features = append(num.Features, f.Name)
		}
		for _, r := range n.RegionInformation {
			if r.RegionType == "state" || num.Region == "" {
				num.Region = r.RegionName
			}
		}
		out = append(out, num)
	}
	return out, nil
}

// PurchaseNumber places a number order. A timeout matches ErrOutcomeUnknown
// since the order may have been placed.
func (c *TelnyxClient) PurchaseNumber(ctx context.Context, phoneNumber string) (*NumberOrder, error) {
	body := map[string]interface{}{
		"phone_numbers": []map[string]string{{"phone_number": phoneNumber}},
	}
	var data struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		PhoneNumbers []struct {
			PhoneNumber string `json:"phone_number"`
			Status      string `json:"status"`
		} `json:"phone_numbers"`
	}
	if err := c.call(ctx, http.MethodPost, "/number_orders", body, &data); err != nil {
		return nil, c.classify("purchase number", err)
	}
	if data.ID == "" {
		return nil, apperrors.Gateway("telnyx", "purchase number", fmt.Errorf("number order without id"))
	}

	order := &NumberOrder{ID: data.ID, Status: data.Status, PhoneNumber: phoneNumber}
	for _, n := range data.PhoneNumbers {
		if n.PhoneNumber == phoneNumber && n.Status != "" && order.Status == "" {
			order.Status = n.Status
		}
	}
	if order.Status == "" {
		order.Status = NumberOrderPending
	}
	c.log.Info("number ordered",
		zap.String("order_id", order.ID),
		zap.String("phone_number", phoneNumber),
		zap.String("status", order.Status))
	return order, nil
}

func (c *TelnyxClient) SendMessage(ctx context.Context, msg OutboundMessage) (*SentMessage, error) {
	body := map[string]string{"from": msg.From, "to": msg.To, "text": msg.Text}
	var data struct {
		ID    string `json:"id"`
		Parts int    `json:"parts"`
		To    []struct {
			PhoneNumber string `json:"phone_number"`
			Status      string `json:"status"`
		} `json:"to"`
	}
	if err := c.call(ctx, http.MethodPost, "/messages", body, &data); err != nil {
		return nil, c.classify("send message", err)
	}
	if data.ID == "" {
		return nil, apperrors.Gateway("telnyx", "send message", fmt.Errorf("message without id"))
	}

	sent := &SentMessage{ID: data.ID, Parts: data.Parts, Status: "queued"}
	if len(data.To) > 0 && data.To[0].Status != "" {
		sent.Status = data.To[0].Status
	}
	return sent, nil
}
