// Package vision labels images with the Google Cloud Vision API.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"

	"imageclassifier/internal/errs"
)

const (
	// DefaultEndpoint is the images:annotate REST endpoint.
	DefaultEndpoint    = "https://vision.googleapis.com/v1/images:annotate"
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
)

// Annotation is the top label returned for an image.
type Annotation struct {
	Label      string
	Confidence float64
}

// Annotator labels the image at imageURL.
type Annotator interface {
	Annotate(ctx context.Context, imageURL string) (*Annotation, error)
}

// Client calls images:annotate with LABEL_DETECTION.
type Client struct {
	httpClient *http.Client
	endpoint   string
	projectID  string
	tokens     oauth2.TokenSource
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	endpoint   string
	tokenURL   string
}

// WithHTTPClient sets the client used for both the token exchange and Vision calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.httpClient = &http.Client{Timeout: d} }
}

// WithEndpoint overrides the images:annotate URL.
func WithEndpoint(url string) Option {
	return func(o *clientOptions) {
		if url != "" {
			o.endpoint = url
		}
	}
}

// WithTokenURL overrides the token_uri from the service account.
func WithTokenURL(url string) Option {
	return func(o *clientOptions) { o.tokenURL = url }
}

// NewClient builds a Client from raw service account JSON. Access tokens are
// fetched with the JWT-bearer grant and reused until they expire.
func NewClient(rawServiceAccount string, opts ...Option) (*Client, error) {
	sa, err := ParseServiceAccount(rawServiceAccount)
	if err != nil {
		return nil, err
	}

	o := clientOptions{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   DefaultEndpoint,
		tokenURL:   sa.TokenURI,
	}
	for _, opt := range opts {
		opt(&o)
	}

	conf := &jwt.Config{
		Email:        sa.ClientEmail,
		PrivateKey:   []byte(sa.PrivateKey),
		PrivateKeyID: sa.PrivateKeyID,
		Scopes:       []string{cloudPlatformScope},
		TokenURL:     o.tokenURL,
		Expires:      time.Hour,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, o.httpClient)

	return &Client{
		httpClient: o.httpClient,
		endpoint:   o.endpoint,
		projectID:  sa.ProjectID,
		tokens:     conf.TokenSource(tokenCtx),
	}, nil
}

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imageSource `json:"image"`
	Features []feature   `json:"features"`
}

type imageSource struct {
	Source struct {
		ImageURI string `json:"imageUri"`
	} `json:"source"`
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults,omitempty"`
}

type annotateResponse struct {
	Responses []struct {
		LabelAnnotations []struct {
			Description string   `json:"description"`
			Score       *float64 `json:"score"`
		} `json:"labelAnnotations"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// Annotate returns the highest-ranked label for imageURL.
func (c *Client) Annotate(ctx context.Context, imageURL string) (*Annotation, error) {
	token, err := c.accessToken()
	if err != nil {
		return nil, err
	}

	var ir imageRequest
	ir.Image.Source.ImageURI = imageURL
	ir.Features = []feature{{Type: "LABEL_DETECTION"}}
	body, err := json.Marshal(annotateRequest{Requests: []imageRequest{ir}})
	if err != nil {
		return nil, errs.Wrap(errs.ErrEncode, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrVisionAPI, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("x-goog-user-project", c.projectID)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrVisionAPI, fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrVisionAPI, fmt.Errorf("failed to read response body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.Wrapf(errs.ErrVisionAPI, "API returned status %d: %s", resp.StatusCode, truncate(raw))
	}

	var ar annotateResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return nil, errs.Wrap(errs.ErrVisionAPI, fmt.Errorf("failed to decode response: %w", err))
	}
	if len(ar.Responses) > 0 && ar.Responses[0].Error != nil {
		e := ar.Responses[0].Error
		return nil, errs.Wrapf(errs.ErrVisionAPI, "annotate error %d: %s", e.Code, e.Message)
	}
	if len(ar.Responses) == 0 || len(ar.Responses[0].LabelAnnotations) == 0 {
		return nil, errs.Wrap(errs.ErrVisionResponse, errors.New("response is missing label annotations"))
	}

	top := ar.Responses[0].LabelAnnotations[0]
	if top.Description == "" || top.Score == nil {
		return nil, errs.Wrap(errs.ErrVisionResponse, errors.New("top label has no description or score"))
	}
	return &Annotation{Label: top.Description, Confidence: *top.Score}, nil
}

func (c *Client) accessToken() (string, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return "", errs.Wrap(errs.ErrTokenAPIRequest, err)
		}
		return "", errs.Wrap(errs.ErrAccessToken, err)
	}
	if tok.AccessToken == "" {
		return "", errs.Wrap(errs.ErrTokenAPIResponse, errors.New("token response has no access_token"))
	}
	return tok.AccessToken, nil
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
