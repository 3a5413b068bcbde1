package line

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

var ErrAccessTokenInvalid = errors.New("access token invalid")

type verifyResponse struct {
	ClientID  string `json:"client_id"`
	ExpiresIn int64  `json:"expires_in"`
	Scope     string `json:"scope"`
	// error body on non-2xx
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Introspect confirms the access token was issued to channelID and has not expired.
// Failures wrap ErrAccessTokenInvalid with the reason.
func (c *Client) Introspect(ctx context.Context, accessToken, channelID string) error {
	out, err := c.call(ctx, "introspect", func(ctx context.Context) (any, error) {
		u := c.endpoints.VerifyURL + "?" + url.Values{"access_token": {accessToken}}.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err != nil {
			return nil, err
		}
		var vr verifyResponse
		decodeErr := json.Unmarshal(body, &vr)
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			reason := vr.ErrorDescription
			if reason == "" {
				reason = resp.Status
			}
			return nil, &ProviderError{Code: vr.Error, Description: reason, Status: resp.StatusCode}
		}
		if decodeErr != nil {
			return nil, &ProviderError{Code: "malformed_response", Description: "malformed verify response", Status: resp.StatusCode}
		}
		return vr, nil
	})
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) {
			return fmt.Errorf("%w: %s", ErrAccessTokenInvalid, pe.Description)
		}
		return fmt.Errorf("%w: %v", ErrAccessTokenInvalid, err)
	}
	vr := out.(verifyResponse)
	if vr.ClientID != channelID {
		return fmt.Errorf("%w: client_id mismatch", ErrAccessTokenInvalid)
	}
	if vr.ExpiresIn <= 0 {
		return fmt.Errorf("%w: token expired", ErrAccessTokenInvalid)
	}
	return nil
}
