package taxlinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestComputeDecodesPaginatedForms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v0/returns" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		var req ComputeRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil || req.TaxYear != 2020 {
			t.Errorf("bad request body %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"r1","return":{"tax_year":2020,
			"forms":{"f1040":{"34":685.5,"single":true},"f8949":[{"I_2_gain":140},{"I_2_gain":20}]},
			"worksheets":{"should_fill_6251":["0","37600"]}},
			"trace":[{"step":"f1040_identity","ran":true}]}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "tok"
	res, err := c.Compute(context.Background(), ComputeRequest{TaxYear: 2020, Input: map[string]any{"ssn": "1"}})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	overpaid, err := res.Return.Amount("f1040", "34")
	if err != nil || overpaid.String() != "685.5" {
		t.Fatalf("line 34 = %s, %v", overpaid, err)
	}
	pages, err := res.Return.Pages("f8949")
	if err != nil || len(pages) != 2 {
		t.Fatalf("pages = %d, %v", len(pages), err)
	}
	if got := res.Return.Worksheets["should_fill_6251"][1].String(); got != "37600" {
		t.Fatalf("worksheet line 1 = %s", got)
	}
	missing, err := res.Return.Pages("f1040sb")
	if err != nil || missing != nil {
		t.Fatalf("expected absent form, got %v %v", missing, err)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"code":"not_found","message":"not found"}}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetReturn(context.Background(), "nope")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 api error, got %v", err)
	}
}
