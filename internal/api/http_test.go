package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/mento-protocol/oracle-v2-playground/internal/feed"
	"github.com/mento-protocol/oracle-v2-playground/internal/provider"
	"github.com/mento-protocol/oracle-v2-playground/internal/service"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	feeds := feed.NewRegistry()
	cfg := feed.Config{WindowSize: 2, AllowedDeviation: 1000, Quorum: 2, CertaintyThreshold: 0, AllowedStaleness: 60}
	if _, err := feeds.Register("CELO/USD", cfg); err != nil {
		t.Fatalf("register feed: %v", err)
	}

	providers := provider.NewRegistry()
	providers.Add("CELO/USD", common.HexToAddress("0x0a"))
	providers.Add("CELO/USD", common.HexToAddress("0x0b"))

	svc := service.New(feeds, providers, service.Options{
		Clock: func() time.Time { return time.Unix(2000, 0).UTC() },
	}, zerolog.Nop())

	return NewHandler(svc, zerolog.Nop())
}

func postReports(t *testing.T, h *Handler, feedID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/feeds/"+url.PathEscape(feedID)+"/reports", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func TestSubmitAndRead(t *testing.T) {
	h := newTestHandler(t)

	rec := postReports(t, h, "CELO/USD", submitRequest{
		TimestampMillis: 1500_000,
		Reports: []reportPayload{
			{Provider: "0x0a", Value: "0x0a"},
			{Provider: "0x0b", Value: "0x0c"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var submitted submitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !submitted.Accepted || submitted.FlagsBitmask != 7 {
		t.Fatalf("unexpected submit response: %+v", submitted)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/feeds/CELO%2FUSD", nil)
	readRec := httptest.NewRecorder()
	h.Router().ServeHTTP(readRec, req)
	if readRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", readRec.Code)
	}

	var got feedResponse
	if err := json.Unmarshal(readRec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// lower middle of [10 12] is 10 raw
	if got.WindowAverage != "0.0000001" {
		t.Fatalf("unexpected window average: %s", got.WindowAverage)
	}
	if got.Legacy.Denominator != "1000000000000000000000000" {
		t.Fatalf("legacy denominator should be 10^24, got %s", got.Legacy.Denominator)
	}
	if got.Rounds != 1 || got.LatestTimestamp != 1500 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestSubmitRejections(t *testing.T) {
	h := newTestHandler(t)

	// below quorum
	rec := postReports(t, h, "CELO/USD", submitRequest{
		TimestampMillis: 1500_000,
		Reports:         []reportPayload{{Provider: "0x0a", Value: "0x0a"}},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("quorum rejection should be 422, got %d", rec.Code)
	}

	// unauthorized provider
	rec = postReports(t, h, "CELO/USD", submitRequest{
		TimestampMillis: 1500_000,
		Reports: []reportPayload{
			{Provider: "0x0a", Value: "0x0a"},
			{Provider: "0xff", Value: "0x0c"},
		},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unauthorized provider should be 403, got %d", rec.Code)
	}

	// malformed value
	rec = postReports(t, h, "CELO/USD", submitRequest{
		TimestampMillis: 1500_000,
		Reports:         []reportPayload{{Provider: "0x0a", Value: "not-hex"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed value should be 400, got %d", rec.Code)
	}
}

func TestUnknownFeedReadsAsDefaults(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/feeds/BTC%2FUSD", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown feed reads should succeed, got %d", rec.Code)
	}

	var got feedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.WindowAverage != "0" || got.Rounds != 0 || got.FlagsBitmask != 0 {
		t.Fatalf("unknown feed should read as zero defaults: %+v", got)
	}
}

func TestListFeeds(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/feeds", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got["feeds"]) != 1 || got["feeds"][0] != "CELO/USD" {
		t.Fatalf("unexpected feed list: %v", got)
	}
}
