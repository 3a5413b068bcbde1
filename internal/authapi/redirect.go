package authapi

import (
	"errors"
	"net/url"
	"slices"
	"strings"
)

// checkRedirect accepts absolute http(s) URLs whose origin is in allowed (any origin when allowed is empty).
func checkRedirect(raw string, allowed []string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, errors.New("redirect_uri must be an absolute URL")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, errors.New("redirect_uri must use http or https")
	}
	if u.User != nil {
		return nil, errors.New("redirect_uri must not carry credentials")
	}
	origin := strings.ToLower(u.Scheme + "://" + u.Host)
	if len(allowed) > 0 && !slices.ContainsFunc(allowed, func(a string) bool {
		return strings.EqualFold(strings.TrimRight(a, "/"), origin)
	}) {
		return nil, errors.New("redirect_uri origin is not allowed")
	}
	return u, nil
}

func withQuery(u *url.URL, kv map[string]string) string {
	c := *u
	q := c.Query()
	for k, v := range kv {
		if v != "" {
			q.Set(k, v)
		}
	}
	c.RawQuery = q.Encode()
	return c.String()
}
