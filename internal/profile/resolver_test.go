package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestResolver(t *testing.T, baseURL, directoryURL string) *Resolver {
	t.Helper()
	r, err := NewResolver(Options{
		BaseURL:      baseURL,
		DirectoryURL: directoryURL,
		Timeout:      2 * time.Second,
		Concurrency:  3,
	})
	if err != nil {
		t.Fatalf("NewResolver err: %v", err)
	}
	return r
}

func TestResolveByIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/customers/subject-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer at" {
			t.Errorf("authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(CustomerProfile{
			PartyID:      "P-1",
			BPID:         "100",
			CustomerName: "Meridian Holdings",
			ContactMechanisms: []ContactMechanism{
				{Type: "EMAIL", Value: "ops@meridian.example"},
				{Type: "CELLPHONE", Value: "0821234567"},
			},
		})
	}))
	defer srv.Close()

	r := newTestResolver(t, srv.URL, srv.URL+"/guid")
	p, err := r.ResolveByIdentity(context.Background(), "subject-1", "at")
	if err != nil {
		t.Fatalf("ResolveByIdentity err: %v", err)
	}
	if p.PartyID != "P-1" || p.CellNumber() != "0821234567" {
		t.Fatalf("profile = %+v", p)
	}
	if !p.StepUpEligible() {
		t.Fatal("profile with party id and cell should be step-up eligible")
	}
}

func TestResolveByIdentity_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := newTestResolver(t, srv.URL, srv.URL+"/guid")
	if _, err := r.ResolveByIdentity(context.Background(), "ghost", "at"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveDirectors_ZeroDirectorsNoCalls(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	r := newTestResolver(t, srv.URL, srv.URL+"/guid")
	origin := &CustomerProfile{
		PartyID: "P-1",
		RelatedParties: []RelatedParty{
			{BPID: "200", RelationshipType: "ACCOUNTANT"},
		},
	}

	batch, err := r.ResolveDirectors(context.Background(), origin, "at")
	if err != nil {
		t.Fatalf("ResolveDirectors err: %v", err)
	}
	if len(batch.Success) != 0 || len(batch.Failed) != 0 {
		t.Fatalf("batch = %+v, want empty", batch)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("directory hit %d times for zero directors", n)
	}
}

func TestResolveDirectors_NilOriginFailsBeforeNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	r := newTestResolver(t, srv.URL, srv.URL+"/guid")
	if _, err := r.ResolveDirectors(context.Background(), nil, "at"); !errors.Is(err, ErrMissingProfile) {
		t.Fatalf("err = %v, want ErrMissingProfile", err)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("directory hit %d times for nil origin", n)
	}
}

func TestResolveDirectors_PartialFailure(t *testing.T) {
	// Three directors: 101 and 103 resolve, 102's guid lookup reports an
	// error row. The batch must carry the two successes and name 102.
	mux := http.NewServeMux()
	mux.HandleFunc("/guid", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BPID string `json:"bpId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.BPID == "102" {
			fmt.Fprintf(w, `{"customers":[{"bpId":"102","bpGuid":"","errorMsg":"record locked","httpStatus":"ERROR"}]}`)
			return
		}
		fmt.Fprintf(w, `{"customers":[{"bpId":%q,"bpGuid":"guid-%s","httpStatus":"OK"}]}`, req.BPID, req.BPID)
	})
	mux.HandleFunc("/customers/guid/", func(w http.ResponseWriter, r *http.Request) {
		guid := strings.TrimPrefix(r.URL.Path, "/customers/guid/")
		bpID := strings.TrimPrefix(guid, "guid-")
		_ = json.NewEncoder(w).Encode(CustomerProfile{
			PartyID:      "P-" + bpID,
			BPID:         bpID,
			CustomerName: "Director " + bpID,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := newTestResolver(t, srv.URL, srv.URL+"/guid")
	origin := &CustomerProfile{
		PartyID: "P-1",
		RelatedParties: []RelatedParty{
			{BPID: "101", RelationshipType: "DIRECTOR"},
			{BPID: "102", RelationshipType: "DIRECTOR"},
			{BPID: "103", RelationshipType: "director"},
			{BPID: "999", RelationshipType: "AUDITOR"},
		},
	}

	batch, err := r.ResolveDirectors(context.Background(), origin, "at")
	if err != nil {
		t.Fatalf("ResolveDirectors err: %v", err)
	}
	if len(batch.Success) != 2 {
		t.Fatalf("resolved %d directors, want 2: %+v", len(batch.Success), batch)
	}
	if len(batch.Failed) != 1 {
		t.Fatalf("failed %d directors, want 1: %+v", len(batch.Failed), batch)
	}
	if batch.Failed[0].BPID != "102" {
		t.Fatalf("failed bpId = %q, want 102", batch.Failed[0].BPID)
	}
	if !strings.Contains(batch.Failed[0].Reason, "record locked") {
		t.Fatalf("failure reason %q lost the provider message", batch.Failed[0].Reason)
	}
}

func TestLookupGUID_OnlyOKRowsCarryGUID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"customers":[{"bpId":"55","bpGuid":"g-55","httpStatus":"OK"}]}`)
	}))
	defer srv.Close()

	r := newTestResolver(t, srv.URL, srv.URL)
	guid, err := r.LookupGUID(context.Background(), "55", "at")
	if err != nil {
		t.Fatalf("LookupGUID err: %v", err)
	}
	if guid != "g-55" {
		t.Fatalf("guid = %q", guid)
	}

	if _, err := r.LookupGUID(context.Background(), "56", "at"); !errors.Is(err, ErrResolution) {
		t.Fatalf("err = %v, want ErrResolution for bpId missing from response", err)
	}
}
