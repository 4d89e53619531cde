package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-authgate/climate-cli/apierr"
)

// Grant is the outcome of a refresh the server answered with 2xx.
type Grant struct {
	AccessGranted bool
}

// RefreshClient asks the server to mint a new access credential from the
// refresh cookie. It must be built on a pipeline without the auth-retry stage.
type RefreshClient struct {
	r requester
}

// NewRefreshClient returns a RefreshClient for baseURL.
func NewRefreshClient(baseURL string, hc *http.Client, timeout time.Duration) *RefreshClient {
	return &RefreshClient{r: newRequester(baseURL, hc, timeout)}
}

// Refresh performs one refresh call. Any 4xx means the refresh cookie is
// missing, invalid or expired and is reported as apierr.KindAuth.
func (c *RefreshClient) Refresh(ctx context.Context) (Grant, error) {
	var resp struct {
		Access string `json:"access"`
	}
	err := c.r.do(ctx, http.MethodPost, PathRefresh, struct{}{}, &resp)

	var apiErr *apierr.Error
	if errors.As(err, &apiErr) && apiErr.Kind == apierr.KindClient {
		apiErr.Kind = apierr.KindAuth
	}
	if err != nil {
		return Grant{}, err
	}
	return Grant{AccessGranted: resp.Access != ""}, nil
}
