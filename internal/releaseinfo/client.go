// Package releaseinfo resolves installer download parameters for a product
// release from the vendor web API.
package releaseinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"aurora/internal/pkg/errors"
	"aurora/internal/secrets"
)

const (
	DefaultBaseURL  = "https://www.sidefx.com/api/"
	DefaultTokenURL = "https://www.sidefx.com/oauth2/application_token"

	secretClientKey = "sidefx_client"
	secretSecretKey = "sidefx_secret"
)

// Build is one entry of the daily builds list.
type Build struct {
	Product  string `json:"product"`
	Platform string `json:"platform"`
	Version  string `json:"version"`
	Build    string `json:"build"`
	Release  string `json:"release"`
	Status   string `json:"status"`
	Date     string `json:"date"`
}

// DownloadInfo is what the fetcher needs to provision an installer.
type DownloadInfo struct {
	DownloadURL string `json:"download_url"`
	Filename    string `json:"filename"`
	Hash        string `json:"hash"`
}

type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient builds a client authenticated with OAuth2 client credentials.
func NewClient(ctx context.Context, baseURL, tokenURL, clientID, clientSecret string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	hc := cc.Client(ctx)
	hc.Timeout = 2 * time.Minute
	return &Client{baseURL: baseURL, client: hc}
}

// NewClientFromSecret reads the client id and secret from the secret store.
func NewClientFromSecret(ctx context.Context, store secrets.Store, secretName, baseURL, tokenURL string) (*Client, error) {
	creds, err := secrets.GetJSON(ctx, store, secretName)
	if err != nil {
		return nil, err
	}
	id, secret := creds[secretClientKey], creds[secretSecretKey]
	if id == "" || secret == "" {
		return nil, errors.Configuration(secretName + "." + secretClientKey + "/" + secretSecretKey)
	}
	return NewClient(ctx, baseURL, tokenURL, id, secret), nil
}

// Resolve finds the download parameters for a full version like "20.5.410":
// the major.minor part selects the build list, the last part the build.
func (c *Client) Resolve(ctx context.Context, product, platform, version string) (DownloadInfo, error) {
	i := strings.LastIndex(version, ".")
	if i <= 0 || i == len(version)-1 {
		return DownloadInfo{}, errors.ValidationField("version", "version must look like <major>.<minor>.<build>")
	}
	short, build := version[:i], version[i+1:]

	var builds []Build
	err := c.call(ctx, "download.get_daily_builds_list", map[string]any{
		"product":         product,
		"version":         short,
		"platform":        platform,
		"only_production": true,
	}, &builds)
	if err != nil {
		return DownloadInfo{}, err
	}

	for _, b := range builds {
		if b.Build != build {
			continue
		}
		if b.Status != "" && b.Status != "good" {
			continue
		}
		var info DownloadInfo
		err := c.call(ctx, "download.get_daily_build_download", map[string]any{
			"product":  b.Product,
			"version":  b.Version,
			"build":    b.Build,
			"platform": b.Platform,
		}, &info)
		if err != nil {
			return DownloadInfo{}, err
		}
		if info.DownloadURL == "" || info.Hash == "" {
			return DownloadInfo{}, errors.Newf(errors.CodeTransport, "incomplete download info for %s %s", product, version)
		}
		return info, nil
	}

	return DownloadInfo{}, errors.NotFound("build", product+" "+version)
}

// call posts json=[name, [], kwargs] to the API endpoint and decodes the result.
func (c *Client) call(ctx context.Context, name string, kwargs map[string]any, out any) error {
	const op = "releaseinfo.call"

	payload, err := json.Marshal([]any{name, []any{}, kwargs})
	if err != nil {
		return errors.Wrap(err, op, "failed to encode api call")
	}
	form := url.Values{"json": {string(payload)}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, op, "failed to build api request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.client.Do(req)
	if err != nil {
		return errors.Transport(err, op, "api request failed").WithField("function", name)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return errors.Newf(errors.CodeTransport, "api http %d: %s", res.StatusCode, strings.TrimSpace(string(body))).
			WithField("function", name).
			WithField("status", res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Transport(err, op, fmt.Sprintf("failed to decode %s response", name))
	}
	return nil
}
