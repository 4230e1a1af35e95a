// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pushclient is an HTTP/JSON client for a push notification
// server. It registers a device installation and subscribes it to
// conversation topics so the server can wake the device when envelopes
// arrive.
//
// Requests follow the Connect unary JSON convention: a POST to
// /<service>/<method> with a JSON body. Transport failures and 5xx
// responses are retried with exponential backoff; 4xx responses are
// returned immediately.
package pushclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/bureau-foundation/msgbridge/lib/netutil"
	"github.com/bureau-foundation/msgbridge/protocol"
)

const servicePath = "/notifications.v1.Notifications/"

// ErrNotRegistered is returned by Subscribe before Register succeeds.
var ErrNotRegistered = errors.New("pushclient: installation not registered")

// Config configures a Client.
type Config struct {
	// Server is the push server base URL. A bare host[:port] is
	// treated as https.
	Server string

	// InstallationID identifies this device. Empty generates a random
	// one.
	InstallationID string

	// HTTPClient defaults to a client with a 30 second timeout.
	HTTPClient *http.Client

	// MaxElapsedTime bounds retries of a single call. Zero means one
	// minute.
	MaxElapsedTime time.Duration

	Logger *slog.Logger
}

// Client talks to one push server.
type Client struct {
	baseURL        string
	installationID string
	httpClient     *http.Client
	maxElapsed     time.Duration
	logger         *slog.Logger

	registered atomic.Bool
}

var _ protocol.PushClient = (*Client)(nil)

// New returns a client for config.Server.
func New(config Config) (*Client, error) {
	server := strings.TrimRight(strings.TrimSpace(config.Server), "/")
	if server == "" {
		return nil, errors.New("pushclient: server is required")
	}
	if !strings.Contains(server, "://") {
		server = "https://" + server
	}
	client := &Client{
		baseURL:        server,
		installationID: config.InstallationID,
		httpClient:     config.HTTPClient,
		maxElapsed:     config.MaxElapsedTime,
		logger:         config.Logger,
	}
	if client.installationID == "" {
		client.installationID = uuid.NewString()
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if client.maxElapsed == 0 {
		client.maxElapsed = time.Minute
	}
	if client.logger == nil {
		client.logger = slog.Default()
	}
	return client, nil
}

// Dialer returns a function suitable for bridge.Config.PushDialer. Each
// dialed client shares template's settings except Server.
func Dialer(template Config) func(server string) (protocol.PushClient, error) {
	return func(server string) (protocol.PushClient, error) {
		config := template
		config.Server = server
		return New(config)
	}
}

// InstallationID returns the id this client registers under.
func (c *Client) InstallationID() string { return c.installationID }

type deliveryMechanism struct {
	Kind  string `json:"kind"`
	Token string `json:"token"`
}

type registerRequest struct {
	InstallationID    string            `json:"installationId"`
	DeliveryMechanism deliveryMechanism `json:"deliveryMechanism"`
}

type registerResponse struct {
	InstallationID string `json:"installationId"`
	ValidUntil     string `json:"validUntil,omitempty"`
}

type subscribeRequest struct {
	InstallationID string   `json:"installationId"`
	Topics         []string `json:"topics"`
}

// Register registers token as this installation's delivery target.
func (c *Client) Register(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("pushclient: token is required")
	}
	var response registerResponse
	err := c.call(ctx, "RegisterInstallation", registerRequest{
		InstallationID:    c.installationID,
		DeliveryMechanism: deliveryMechanism{Kind: "device_token", Token: token},
	}, &response)
	if err != nil {
		return fmt.Errorf("pushclient: register: %w", err)
	}
	if response.InstallationID != "" && response.InstallationID != c.installationID {
		return fmt.Errorf("pushclient: register: server answered for installation %q", response.InstallationID)
	}
	c.registered.Store(true)
	c.logger.Info("push installation registered", "server", c.baseURL, "installation_id", c.installationID)
	return nil
}

// Subscribe adds topics to the installation's subscriptions.
func (c *Client) Subscribe(ctx context.Context, topics []string) error {
	if !c.registered.Load() {
		return ErrNotRegistered
	}
	if len(topics) == 0 {
		return nil
	}
	if err := c.call(ctx, "Subscribe", subscribeRequest{InstallationID: c.installationID, Topics: topics}, nil); err != nil {
		return fmt.Errorf("pushclient: subscribe: %w", err)
	}
	c.logger.Debug("push topics subscribed", "installation_id", c.installationID, "topics", len(topics))
	return nil
}

// StatusError is a non-2xx response from the push server.
type StatusError struct {
	Method string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Method, e.Status, e.Body)
}

// call posts request to method and decodes the reply into response
// (which may be nil).
func (c *Client) call(ctx context.Context, method string, request, response any) error {
	body, err := json.Marshal(request)
	if err != nil {
		return err
	}
	url := c.baseURL + servicePath + method

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = c.maxElapsed

	attempt := 0
	operation := func() error {
		attempt++
		httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpRequest.Header.Set("Content-Type", "application/json")

		httpResponse, err := c.httpClient.Do(httpRequest)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Debug("push request failed", "method", method, "attempt", attempt, "error", err)
			return err
		}
		defer httpResponse.Body.Close()

		if httpResponse.StatusCode/100 != 2 {
			statusErr := &StatusError{Method: method, Status: httpResponse.StatusCode, Body: netutil.ErrorBody(httpResponse.Body)}
			if httpResponse.StatusCode >= 500 {
				c.logger.Debug("push server error", "method", method, "attempt", attempt, "status", httpResponse.StatusCode)
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}
		if response == nil {
			return nil
		}
		if err := netutil.DecodeResponse(httpResponse.Body, response); err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}
