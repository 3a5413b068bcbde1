package line

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// Tokens is the subset of the token endpoint response the login flow uses.
type Tokens struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresIn    int64
}

// ProviderError is the structured {error, error_description} body returned by LINE on a non-2xx response.
type ProviderError struct {
	Code        string
	Description string
	Status      int
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + " - " + e.Description
}

// Exchange trades an authorization code for tokens. Single attempt, no retry.
func (c *Client) Exchange(ctx context.Context, ch Channel, code string) (Tokens, error) {
	out, err := c.call(ctx, "exchange", func(ctx context.Context) (any, error) {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
		tok, err := c.oauth2Config(ch).Exchange(ctx, code)
		if err != nil {
			var re *oauth2.RetrieveError
			if errors.As(err, &re) {
				pe := &ProviderError{Code: re.ErrorCode, Description: re.ErrorDescription}
				if re.Response != nil {
					pe.Status = re.Response.StatusCode
					if pe.Code == "" {
						pe.Code = strings.TrimSpace(re.Response.Status)
					}
				}
				return nil, pe
			}
			return nil, err
		}
		return tok, nil
	})
	if err != nil {
		return Tokens{}, err
	}
	tok := out.(*oauth2.Token)
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return Tokens{}, errors.New("token response carried no id_token")
	}
	t := Tokens{AccessToken: tok.AccessToken, IDToken: idToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		t.ExpiresIn = int64(tok.Expiry.Sub(c.clock()).Seconds())
	}
	if t.AccessToken == "" {
		return Tokens{}, fmt.Errorf("token response carried no access_token")
	}
	return t, nil
}
