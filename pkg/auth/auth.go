// Package auth provides websocket.Authorizer implementations for the
// authorization modes of the events broker.
package auth

import (
	"context"
	"net/url"
	"strings"

	"github.com/yanun0323/errors"

	"github.com/yanun0323/eventsocket/pkg/websocket"
)

var (
	ErrMissingCredential = errors.New("auth: missing credential")
	ErrInvalidEndpoint   = errors.New("auth: invalid endpoint")
)

const (
	realtimeHostMarker = ".appsync-realtime-api."
	httpHostMarker     = ".appsync-api."
)

// APIKey authorizes with an API key.
type APIKey struct {
	// Key is the API key.
	Key string
	// Host is the HTTP host of the event API. Optional; derived from the
	// request URL when empty.
	Host string
}

// Authorize implements websocket.Authorizer.
func (a APIKey) Authorize(_ context.Context, req websocket.AuthRequest) (map[string]string, error) {
	if a.Key == "" {
		return nil, errors.Wrap(ErrMissingCredential, "api key")
	}
	host, err := resolveHost(a.Host, req.URL)
	if err != nil {
		return nil, err
	}
	return map[string]string{"host": host, "x-api-key": a.Key}, nil
}

// Bearer authorizes with a token issued by an identity provider, such as a
// Cognito or OIDC JWT. The token is sent as is, without a scheme prefix.
type Bearer struct {
	// Token returns the current token. It is called once per request.
	Token func(ctx context.Context) (string, error)
	// Host is the HTTP host of the event API. Optional; derived from the
	// request URL when empty.
	Host string
}

// StaticToken returns a token source that always yields token.
func StaticToken(token string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// Authorize implements websocket.Authorizer.
func (a Bearer) Authorize(ctx context.Context, req websocket.AuthRequest) (map[string]string, error) {
	if a.Token == nil {
		return nil, errors.Wrap(ErrMissingCredential, "token source")
	}
	token, err := a.Token(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch token")
	}
	if token == "" {
		return nil, errors.Wrap(ErrMissingCredential, "empty token")
	}
	host, err := resolveHost(a.Host, req.URL)
	if err != nil {
		return nil, err
	}
	return map[string]string{"host": host, "Authorization": token}, nil
}

// Static returns the same headers for every request.
type Static map[string]string

// Authorize implements websocket.Authorizer.
func (s Static) Authorize(context.Context, websocket.AuthRequest) (map[string]string, error) {
	headers := make(map[string]string, len(s))
	for k, v := range s {
		headers[k] = v
	}
	return headers, nil
}

// Chain merges the headers of every authorizer, later ones winning.
func Chain(authorizers ...websocket.Authorizer) websocket.Authorizer {
	return websocket.AuthorizerFunc(func(ctx context.Context, req websocket.AuthRequest) (map[string]string, error) {
		headers := map[string]string{}
		for _, a := range authorizers {
			if a == nil {
				continue
			}
			h, err := a.Authorize(ctx, req)
			if err != nil {
				return nil, err
			}
			for k, v := range h {
				headers[k] = v
			}
		}
		return headers, nil
	})
}

// HostFromEndpoint returns the HTTP host of the event API behind a realtime
// endpoint. Custom domains are returned unchanged.
func HostFromEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", errors.Wrap(ErrInvalidEndpoint, "parse endpoint").With("endpoint", endpoint)
	}
	return strings.Replace(u.Host, realtimeHostMarker, httpHostMarker, 1), nil
}

func resolveHost(host, endpoint string) (string, error) {
	if host != "" {
		return host, nil
	}
	return HostFromEndpoint(endpoint)
}
