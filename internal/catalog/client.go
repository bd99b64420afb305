package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rewired-gh/skupricer/internal/logger"
)

// ClientConfig holds optional client settings.
type ClientConfig struct {
	APIKey         string
	MaxRetries     int
	RetryDelayBase time.Duration
}

// Client fetches the full price catalog from the remote endpoint
type Client struct {
	catalogURL string
	httpClient *http.Client
	config     ClientConfig
}

// wireItem is one entry of the "items" object.
type wireItem struct {
	Defindex []int `json:"defindex"`
	Prices   *Node `json:"prices"`
}

// NewClient creates a new catalog client
func NewClient(catalogURL string, timeout time.Duration, config ClientConfig) *Client {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelayBase <= 0 {
		config.RetryDelayBase = time.Second
	}
	return &Client{
		catalogURL: catalogURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		config: config,
	}
}

// FetchCatalog downloads and parses the whole catalog. Items keep document order.
func (c *Client) FetchCatalog(ctx context.Context) ([]Entry, error) {
	reqURL, err := c.requestURL()
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	entries, err := decodeCatalog(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return entries, nil
}

func (c *Client) requestURL() (string, error) {
	u, err := url.Parse(c.catalogURL)
	if err != nil {
		return "", fmt.Errorf("invalid catalog url: %w", err)
	}
	if c.config.APIKey != "" {
		q := u.Query()
		q.Set("key", c.config.APIKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.config.MaxRetries; i++ {
		if i > 0 {
			if err := c.sleep(ctx, time.Duration(i)*c.config.RetryDelayBase); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			logger.Debug("Catalog request attempt %d failed: %v", i+1, err)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			logger.Debug("Catalog request attempt %d failed: %v", i+1, lastErr)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// decodeCatalog streams the payload so the items object keeps its document order.
func decodeCatalog(r io.Reader) ([]Entry, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var (
		entries     []Entry
		sawResponse bool
		success     int
		message     string
	)

	for dec.More() {
		key, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		if key != "response" {
			if err := skipValue(dec); err != nil {
				return nil, err
			}
			continue
		}
		sawResponse = true

		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}
		for dec.More() {
			field, err := objectKey(dec)
			if err != nil {
				return nil, err
			}
			switch field {
			case "success":
				if err := dec.Decode(&success); err != nil {
					return nil, fmt.Errorf("invalid success flag: %w", err)
				}
			case "message":
				if err := dec.Decode(&message); err != nil {
					return nil, fmt.Errorf("invalid message: %w", err)
				}
			case "items":
				entries, err = decodeItems(dec)
				if err != nil {
					return nil, err
				}
			default:
				if err := skipValue(dec); err != nil {
					return nil, err
				}
			}
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
	}

	if !sawResponse {
		return nil, errors.New("payload has no response object")
	}
	if success != 1 {
		if message != "" {
			return nil, fmt.Errorf("catalog reported failure: %s", message)
		}
		return nil, errors.New("catalog reported failure")
	}
	return entries, nil
}

func decodeItems(dec *json.Decoder) ([]Entry, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("items: %w", err)
	}

	var entries []Entry
	for dec.More() {
		name, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		var item wireItem
		if err := dec.Decode(&item); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				logger.Debug("Skipping catalog item %q: %v", name, err)
				continue
			}
			return nil, fmt.Errorf("item %q: %w", name, err)
		}
		if len(item.Defindex) == 0 || item.Prices == nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    name,
			BaseIDs: item.Defindex,
			Prices:  item.Prices,
		})
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, fmt.Errorf("items: %w", err)
	}
	return entries, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func objectKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

func skipValue(dec *json.Decoder) error {
	var raw json.RawMessage
	return dec.Decode(&raw)
}
