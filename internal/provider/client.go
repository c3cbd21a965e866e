package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/dncl-gateway/internal/domain"
)

const (
	defaultVendorTimeout = 10 * time.Minute

	addToListPath      = "/api/instance/instanceManager/addToDoNotCallList"
	removeFromListPath = "/api/instance/instanceManager/fromDoNotCallList"
	tokenPath          = "/token"
)

// Endpoint describes how to reach one vendor instance.
type Endpoint struct {
	BaseURL         string
	InstanceAddress string
	TLSVerify       bool
	Timeout         time.Duration
}

// NewRestyClient builds the HTTP client shared by the authenticator and the
// list client of one target. Retries are disabled.
func NewRestyClient(endpoint Endpoint) (*resty.Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(endpoint.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("vendor base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid vendor base url: %w", err)
	}

	timeout := endpoint.Timeout
	if timeout <= 0 {
		timeout = defaultVendorTimeout
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetRetryCount(0)
	if !endpoint.TLSVerify {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // vendor instances use self-signed certificates
	}

	return client, nil
}

type listEntryRequest struct {
	DoNotCallListName string `json:"doNotCallListName"`
	Number            string `json:"number"`
	Discriminator     string `json:"discriminator"`
}

// ListClient issues the mutating do-not-call list calls against one vendor.
type ListClient struct {
	client *resty.Client
}

func NewListClient(client *resty.Client) (*ListClient, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	return &ListClient{client: client}, nil
}

func (c *ListClient) Mutate(ctx context.Context, op domain.Operation, req domain.TargetRequest, token string) RawOutcome {
	if c == nil || c.client == nil {
		return RawOutcome{Err: fmt.Errorf("list client is not initialized")}
	}

	request := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(token).
		SetBody(listEntryRequest{
			DoNotCallListName: req.ListName(),
			Number:            req.PhoneNumber(),
			Discriminator:     op.Discriminator(),
		})

	var (
		response *resty.Response
		err      error
	)
	switch op {
	case domain.OperationAdd:
		response, err = request.Put(addToListPath)
	case domain.OperationRemove:
		response, err = request.Delete(removeFromListPath)
	default:
		return RawOutcome{Err: fmt.Errorf("unsupported operation %q", op)}
	}

	if err != nil {
		return RawOutcome{Err: err}
	}
	if response == nil {
		return RawOutcome{Err: fmt.Errorf("vendor returned empty response")}
	}

	return RawOutcome{
		StatusCode: response.StatusCode(),
		Body:       response.Body(),
	}
}
