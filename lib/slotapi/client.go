package slotapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/fiffu/ttquick/config"
	"github.com/fiffu/ttquick/lib/models"
)

// Client talks to the trusted traveler scheduler API.
type Client struct {
	baseURL   string
	transport http.RoundTripper
	timeout   time.Duration
}

func NewClient(cfg *config.Config, transport http.RoundTripper) *Client {
	return New(cfg.SlotAPI.BaseURL, transport, cfg.SlotAPI.Timeout)
}

func New(baseURL string, transport http.RoundTripper, timeout time.Duration) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{baseURL, transport, timeout}
}

// CheckAvailability reports the open slots at a location. A 404 from the API
// means the location has nothing published and is not an error.
func (c *Client) CheckAvailability(ctx context.Context, locationID models.LocationID) (*models.Availability, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body json.RawMessage
	err := requests.URL(c.baseURL).
		Path("slot-availability").
		Param("locationId", locationID.String()).
		Accept("application/json").
		Transport(c.transport).
		ToJSON(&body).
		Fetch(ctx)

	switch {
	case requests.HasStatusErr(err, http.StatusNotFound):
		return &models.Availability{}, nil
	case err != nil:
		return nil, &TransientFetchError{LocationID: locationID, Err: err}
	}

	slots, err := decodeSlots(body)
	if err != nil {
		return nil, &TransientFetchError{LocationID: locationID, Err: err}
	}
	return &models.Availability{HasSlots: len(slots) > 0, Slots: slots}, nil
}

// The API has served both a bare list of slots and an envelope with
// availableSlots; accept either.
func decodeSlots(body json.RawMessage) ([]models.SlotInfo, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}

	if body[0] == '[' {
		var slots []models.SlotInfo
		if err := json.Unmarshal(body, &slots); err != nil {
			return nil, fmt.Errorf("decode slot list: %w", err)
		}
		return slots, nil
	}

	var envelope struct {
		AvailableSlots    []models.SlotInfo `json:"availableSlots"`
		LastPublishedDate string            `json:"lastPublishedDate"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode slot envelope: %w", err)
	}
	return envelope.AvailableSlots, nil
}

// FetchLocations returns the Global Entry enrollment directory.
func (c *Client) FetchLocations(ctx context.Context) ([]DirectoryLocation, error) {
	var locs []DirectoryLocation
	err := requests.URL(c.baseURL).
		Path("locations/").
		Param("temporary", "false").
		Param("inviteOnly", "false").
		Param("operational", "true").
		Param("serviceName", "Global Entry").
		Accept("application/json").
		Transport(c.transport).
		ToJSON(&locs).
		Fetch(ctx)
	if err != nil {
		return nil, &TransientFetchError{Err: err}
	}
	return locs, nil
}
