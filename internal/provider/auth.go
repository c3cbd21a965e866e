package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/dncl-gateway/internal/domain"
)

const authenticationFailedMarker = "AuthenticationFailed"

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Authenticator obtains bearer tokens through the vendor password grant.
// Tokens are never cached; every call performs a fresh grant.
type Authenticator struct {
	client          *resty.Client
	instanceAddress string
}

func NewAuthenticator(client *resty.Client, instanceAddress string) (*Authenticator, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if strings.TrimSpace(instanceAddress) == "" {
		return nil, fmt.Errorf("instance address is required")
	}

	return &Authenticator{
		client:          client,
		instanceAddress: strings.TrimSpace(instanceAddress),
	}, nil
}

func (a *Authenticator) Authenticate(ctx context.Context, creds domain.Credentials) (string, error) {
	if a == nil || a.client == nil {
		return "", fmt.Errorf("authenticator is not initialized")
	}

	response, err := a.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username":           creds.Username,
			"password":           creds.Password,
			"grant_type":         "password",
			"instanceaddress":    a.instanceAddress,
			"secureaccess":       "false",
			"authenticationType": "Uci",
			"forced":             "true",
			"operation":          "login",
		}).
		SetResult(&tokenResponse{}).
		SetError(&tokenErrorResponse{}).
		Post(tokenPath)
	if err != nil {
		return "", &AuthError{Message: "token request failed", Cause: err}
	}
	if response == nil {
		return "", &AuthError{Message: "vendor returned empty token response"}
	}

	if !response.IsSuccess() {
		return "", &AuthError{
			StatusCode: response.StatusCode(),
			Message:    authErrorMessage(response),
		}
	}

	result, ok := response.Result().(*tokenResponse)
	if !ok || strings.TrimSpace(result.AccessToken) == "" {
		return "", &AuthError{
			StatusCode: response.StatusCode(),
			Message:    "vendor returned an empty access token",
		}
	}

	return result.AccessToken, nil
}

func authErrorMessage(response *resty.Response) string {
	if payload, ok := response.Error().(*tokenErrorResponse); ok && payload != nil {
		description := strings.TrimSpace(payload.ErrorDescription)
		if strings.Contains(description, authenticationFailedMarker) {
			return "invalid username or password"
		}
		if description != "" {
			return description
		}
		if code := strings.TrimSpace(payload.Error); code != "" {
			return code
		}
	}

	if body := strings.TrimSpace(response.String()); body != "" {
		if strings.Contains(body, authenticationFailedMarker) {
			return "invalid username or password"
		}
		return body
	}

	return fmt.Sprintf("vendor returned status %d", response.StatusCode())
}
