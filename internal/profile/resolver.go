package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrNotFound: the directory has no record for the identity. Fatal for
	// the affected business entity; the UI shows a retry-prompting error.
	ErrNotFound = errors.New("customer profile not found")

	// ErrResolution wraps every other directory failure.
	ErrResolution = errors.New("profile resolution failed")

	// ErrMissingProfile: the originating business-selection record is
	// absent. This is a broken precondition, not a per-item failure, so
	// the director fan-out refuses to start.
	ErrMissingProfile = errors.New("originating customer profile missing")
)

// Resolver is the client for the back-office customer directory.
type Resolver struct {
	baseURL      string
	directoryURL string
	http         *http.Client
	concurrency  int
}

type Options struct {
	BaseURL      string
	DirectoryURL string
	Timeout      time.Duration
	// Concurrency caps the director fan-out; <= 0 falls back to 4.
	Concurrency int
}

func NewResolver(opts Options) (*Resolver, error) {
	if opts.BaseURL == "" || opts.DirectoryURL == "" {
		return nil, fmt.Errorf("%w: profile base_url and directory_url are required", ErrResolution)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Resolver{
		baseURL:      opts.BaseURL,
		directoryURL: opts.DirectoryURL,
		http:         &http.Client{Timeout: opts.Timeout},
		concurrency:  opts.Concurrency,
	}, nil
}

// ResolveByIdentity looks up the business record keyed by the identity
// subject.
func (r *Resolver) ResolveByIdentity(ctx context.Context, subjectID, accessToken string) (*CustomerProfile, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrResolution)
	}
	return r.getProfile(ctx, r.baseURL+"/customers/"+subjectID, accessToken)
}

// ResolveByGUID fetches a full profile by its directory GUID. Used by the
// director fan-out after the BPID to GUID lookup.
func (r *Resolver) ResolveByGUID(ctx context.Context, guid, accessToken string) (*CustomerProfile, error) {
	if guid == "" {
		return nil, fmt.Errorf("%w: empty guid", ErrResolution)
	}
	return r.getProfile(ctx, r.baseURL+"/customers/guid/"+guid, accessToken)
}

func (r *Resolver) getProfile(ctx context.Context, url, accessToken string) (*CustomerProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolution, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolution, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode/100 != 2:
		return nil, fmt.Errorf("%w: http %d", ErrResolution, resp.StatusCode)
	}

	var p CustomerProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrResolution, err)
	}
	return &p, nil
}

// guidLookupResponse mirrors the directory's BPID to GUID endpoint. Only
// rows with httpStatus "OK" carry a usable GUID.
type guidLookupResponse struct {
	Customers []struct {
		BPID       string `json:"bpId"`
		BPGUID     string `json:"bpGuid"`
		ErrorMsg   string `json:"errorMsg"`
		HTTPStatus string `json:"httpStatus"`
	} `json:"customers"`
}

// LookupGUID resolves a numeric business-partner id to its stable GUID.
func (r *Resolver) LookupGUID(ctx context.Context, bpID, accessToken string) (string, error) {
	body, _ := json.Marshal(map[string]string{"bpId": bpID})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.directoryURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrResolution, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrResolution, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%w: guid lookup http %d", ErrResolution, resp.StatusCode)
	}

	var out guidLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: guid lookup decode: %v", ErrResolution, err)
	}

	for _, c := range out.Customers {
		if c.BPID != bpID {
			continue
		}
		if c.HTTPStatus != "OK" {
			reason := c.ErrorMsg
			if reason == "" {
				reason = "status " + c.HTTPStatus
			}
			return "", fmt.Errorf("%w: %s", ErrResolution, reason)
		}
		if c.BPGUID == "" {
			return "", fmt.Errorf("%w: empty guid for bpId %s", ErrResolution, bpID)
		}
		return c.BPGUID, nil
	}
	return "", fmt.Errorf("%w: bpId %s not in lookup response", ErrResolution, bpID)
}
