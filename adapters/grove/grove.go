// Package grove uploads JSON metadata to a Grove compatible blob store.
package grove

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/layer-3/lens-onboard/core"
	"github.com/layer-3/lens-onboard/ports"
)

const (
	// DefaultURL is the public Grove API
	DefaultURL = "https://api.grove.storage"

	// TestnetChainID is the Lens testnet chain, used for immutable uploads
	TestnetChainID = 37111

	// MainnetChainID is the Lens mainnet chain
	MainnetChainID = 232
)

var errNoURI = errors.New("upload response carries no uri")

// Client uploads documents and returns their lens:// uri
type Client struct {
	baseURL string
	chainID int64
	http    *http.Client
	timeout time.Duration
}

var _ ports.MetadataStorage = (*Client)(nil)

// NewClient creates a client. A zero timeout selects 15 seconds.
func NewClient(baseURL string, chainID int64, hc *http.Client, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		chainID: chainID,
		http:    hc,
		timeout: timeout,
	}
}

type uploadResult struct {
	StorageKey string `json:"storage_key"`
	GatewayURL string `json:"gateway_url"`
	URI        string `json:"uri"`
}

// UploadAsJSON stores document and returns its uri
func (c *Client) UploadAsJSON(ctx context.Context, document any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(document)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}

	url := c.baseURL + "/"
	if c.chainID != 0 {
		url += "?chain_id=" + strconv.FormatInt(c.chainID, 10)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &core.TransportError{Op: "UploadAsJSON", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &core.TransportError{Op: "UploadAsJSON", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &core.TransportError{Op: "UploadAsJSON", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &core.TransportError{Op: "UploadAsJSON", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	uri, err := decodeURI(raw)
	if err != nil {
		return "", &core.TransportError{Op: "UploadAsJSON", Err: err}
	}
	return uri, nil
}

// decodeURI accepts both the single object and the list form of an upload response
func decodeURI(raw []byte) (string, error) {
	raw = bytes.TrimSpace(raw)
	var one uploadResult
	if len(raw) > 0 && raw[0] == '[' {
		var many []uploadResult
		if err := json.Unmarshal(raw, &many); err != nil {
			return "", fmt.Errorf("decoding upload response: %w", err)
		}
		if len(many) > 0 {
			one = many[0]
		}
	} else if err := json.Unmarshal(raw, &one); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	if one.URI == "" {
		return "", errNoURI
	}
	return one.URI, nil
}
