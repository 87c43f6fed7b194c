// Package client posts signed invoice requests to the fiscalization
// endpoint over mutual TLS.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/janbehro/eDavkiRepairer/internal/fiscal"
)

const invoicesPath = "/v1/cash_registers/invoices"

// Client is the eDavki invoice endpoint client.
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// New creates a client that presents cert as the TLS client certificate.
func New(baseURL string, cert tls.Certificate, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json; charset=UTF-8").
			SetTimeout(60 * time.Second).
			SetTLSClientConfig(&tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}),
		log: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostInvoice sends a signed request body and returns the raw response body.
// Any transport or HTTP-level failure is a TransportError; the body is
// returned unverified and must go through the verify package.
func (c *Client) PostInvoice(ctx context.Context, body string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(invoicesPath)
	if err != nil {
		return nil, fiscal.ErrTransport("invoice request failed", err)
	}
	if resp.IsError() {
		c.log.Warn("invoice endpoint returned error status",
			zap.Int("status", resp.StatusCode()),
			zap.ByteString("body", resp.Body()))
		return nil, fiscal.ErrTransport(fmt.Sprintf("invoice endpoint returned %s", resp.Status()), nil)
	}
	return resp.Body(), nil
}
