// Package client implements the viewer-side access machinery shared by
// the content modules: an HTTP client for the access API, a local
// grant cache with expiry-driven reconciliation, a live event
// subscriber with polling fallback, and the preview lock.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/lawnetwork/lawnet/core/access"
)

type (
	Client struct {
		baseURL string
		httpc   *http.Client
	}

	// GrantInfo is the access-check answer; Expiry is nil when access
	// is not allowed.
	GrantInfo struct {
		Allowed bool       `json:"allowed"`
		Expiry  *time.Time `json:"expiry,omitempty"`
		Message string     `json:"message,omitempty"`
	}

	// ProofSubmission is the intake payload.
	ProofSubmission struct {
		Subject   string `json:"subject"`
		Feature   string `json:"feature"`
		FeatureID string `json:"feature_id"`
		PlanTier  string `json:"plan_tier,omitempty"`
		ProofRef  string `json:"proof_ref"`
		Contact   string `json:"contact,omitempty"`
	}

	// IntakeResult carries the submission id and, when the server
	// auto-approved, the immediate expiry.
	IntakeResult struct {
		Submission struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"submission"`
		Expiry *time.Time `json:"expiry,omitempty"`
	}
)

func New(baseURL string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, httpc: httpc}
}

// CheckAccess queries the current grant state for the key. This is the
// source of truth the cache reconciles against.
func (c *Client) CheckAccess(ctx context.Context, key access.Key) (GrantInfo, error) {
	q := make(url.Values)
	q.Set("subject", key.Subject)
	q.Set("feature", key.Feature)
	q.Set("feature_id", key.FeatureID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/access?"+q.Encode(), nil)
	if err != nil {
		return GrantInfo{}, errors.Wrap(err, "building access request")
	}

	res, err := c.httpc.Do(req)
	if err != nil {
		return GrantInfo{}, errors.Wrap(err, "checking access")
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return GrantInfo{}, errors.Errorf("checking access: unexpected status %d", res.StatusCode)
	}
	var info GrantInfo
	if err = json.NewDecoder(res.Body).Decode(&info); err != nil {
		return GrantInfo{}, errors.Wrap(err, "decoding access response")
	}
	return info, nil
}

// SubmitProof files a proof-of-payment submission.
func (c *Client) SubmitProof(ctx context.Context, sub ProofSubmission) (IntakeResult, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return IntakeResult{}, errors.Wrap(err, "encoding submission")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/submissions", bytes.NewReader(body))
	if err != nil {
		return IntakeResult{}, errors.Wrap(err, "building intake request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpc.Do(req)
	if err != nil {
		return IntakeResult{}, errors.Wrap(err, "submitting proof")
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return IntakeResult{}, errors.Errorf("submitting proof: status %d: %s", res.StatusCode, data)
	}
	var result IntakeResult
	if err = json.NewDecoder(res.Body).Decode(&result); err != nil {
		return IntakeResult{}, errors.Wrap(err, "decoding intake response")
	}
	return result, nil
}

func (c *Client) eventsURL(subject string) string {
	return fmt.Sprintf("%s/v1/access/events?subject=%s", c.baseURL, url.QueryEscape(subject))
}
