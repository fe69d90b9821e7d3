// Package signature requests electronic signatures on deal documents through
// Yousign.
package signature

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/hugh/estateflow/pkg/config"
	"github.com/hugh/estateflow/pkg/util"
)

// StatusDone is the provider status of a fully signed request.
const StatusDone = "done"

var ErrNotConfigured = errors.New("signature provider not configured")

type Request struct {
	DocumentName string
	Filename     string
	PDF          []byte
	SignerEmail  string
	SignerName   string
}

type Result struct {
	SignatureRequestID string `json:"signatureRequestId"`
	SignerURL          string `json:"signerUrl"`
	Status             string `json:"status"`
}

// Provider is the subset of an e-signature API the document flow needs.
type Provider interface {
	CreateRequest(ctx context.Context, req Request) (*Result, error)
	Status(ctx context.Context, requestID string) (string, error)
	DownloadSigned(ctx context.Context, requestID string) ([]byte, error)
}

type YousignClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewYousignClient(cfg *config.SignatureConfig) *YousignClient {
	return &YousignClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateRequest creates the request, uploads the PDF, adds the signer and
// activates it. Creation steps are not idempotent and are tried once.
func (c *YousignClient) CreateRequest(ctx context.Context, req Request) (*Result, error) {
	var created struct {
		ID string `json:"id"`
	}
	err := c.postJSON(ctx, "/signature_requests", map[string]any{
		"name":          "Signature: " + req.DocumentName,
		"delivery_mode": "email",
		"timezone":      "Europe/Paris",
	}, &created)
	if err != nil {
		return nil, fmt.Errorf("creating signature request: %w", err)
	}

	documentID, err := c.uploadDocument(ctx, created.ID, req.Filename, req.PDF)
	if err != nil {
		return nil, fmt.Errorf("uploading document: %w", err)
	}

	first, last := splitName(req.SignerName)
	var signer struct {
		ID            string  `json:"id"`
		SignatureLink *string `json:"signature_link"`
	}
	err = c.postJSON(ctx, "/signature_requests/"+created.ID+"/signers", map[string]any{
		"info": map[string]any{
			"first_name": first,
			"last_name":  last,
			"email":      req.SignerEmail,
			"locale":     "fr",
		},
		"signature_level":               "electronic_signature",
		"signature_authentication_mode": "no_otp",
		"fields": []map[string]any{{
			"type":        "signature",
			"document_id": documentID,
			"page":        1,
			"x":           100,
			"y":           700,
			"width":       200,
			"height":      50,
		}},
	}, &signer)
	if err != nil {
		return nil, fmt.Errorf("adding signer: %w", err)
	}

	if err := c.postJSON(ctx, "/signature_requests/"+created.ID+"/activate", nil, nil); err != nil {
		return nil, fmt.Errorf("activating signature request: %w", err)
	}

	result := &Result{SignatureRequestID: created.ID, Status: "ongoing"}
	if signer.SignatureLink != nil {
		result.SignerURL = *signer.SignatureLink
	}
	return result, nil
}

func (c *YousignClient) Status(ctx context.Context, requestID string) (string, error) {
	resp, err := c.get(ctx, "/signature_requests/"+requestID)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding status: %w", err)
	}
	return out.Status, nil
}

func (c *YousignClient) DownloadSigned(ctx context.Context, requestID string) ([]byte, error) {
	resp, err := c.get(ctx, "/signature_requests/"+requestID+"/documents/download")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *YousignClient) get(ctx context.Context, path string) (*http.Response, error) {
	return util.DoWithRetry(ctx, c.httpClient, 3, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		return req, nil
	})
}

func (c *YousignClient) postJSON(ctx context.Context, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	resp, err := util.DoWithRetry(ctx, c.httpClient, 1, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *YousignClient) uploadDocument(ctx context.Context, requestID, filename string, pdf []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, strings.ReplaceAll(filename, `"`, "")))
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(pdf); err != nil {
		return "", err
	}
	if err := mw.WriteField("nature", "signable_document"); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	resp, err := util.DoWithRetry(ctx, c.httpClient, 1, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.baseURL+"/signature_requests/"+requestID+"/documents", bytes.NewReader(buf.Bytes()))
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var doc struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (c *YousignClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], parts[1]
	}
}

// Disabled is used when no API key is configured.
type Disabled struct{}

func (Disabled) CreateRequest(ctx context.Context, req Request) (*Result, error) {
	return nil, ErrNotConfigured
}

func (Disabled) Status(ctx context.Context, requestID string) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) DownloadSigned(ctx context.Context, requestID string) ([]byte, error) {
	return nil, ErrNotConfigured
}

// New returns the Yousign client when configured, Disabled otherwise.
func New(cfg *config.SignatureConfig) Provider {
	if !cfg.Enabled() {
		return Disabled{}
	}
	return NewYousignClient(cfg)
}
