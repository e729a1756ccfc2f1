// Package api exposes the read interface and the report submission endpoint
// over HTTP. The transport encoding of batched reports lives entirely here;
// the engine only ever sees decoded observations.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/mento-protocol/oracle-v2-playground/internal/feed"
	"github.com/mento-protocol/oracle-v2-playground/internal/provider"
	"github.com/mento-protocol/oracle-v2-playground/internal/report"
	"github.com/mento-protocol/oracle-v2-playground/internal/service"
)

// Handler serves the HTTP surface for a running service.
type Handler struct {
	svc    *service.Service
	logger zerolog.Logger
}

// NewHandler builds the HTTP handler.
func NewHandler(svc *service.Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With().Str("component", "api").Logger()}
}

// Router wires the endpoint routes. Feed identifiers like "CELO/USD" arrive
// percent-encoded, so the router matches on the encoded path.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter().UseEncodedPath()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/v1/feeds", h.listFeeds).Methods(http.MethodGet)
	r.HandleFunc("/v1/feeds/{id}", h.getFeed).Methods(http.MethodGet)
	r.HandleFunc("/v1/feeds/{id}/reports", h.submitReports).Methods(http.MethodPost)
	return r
}

type feedResponse struct {
	ID              string     `json:"id"`
	WindowAverage   string     `json:"window_average"`
	WindowSum       string     `json:"window_sum"`
	Flags           flagsJSON  `json:"flags"`
	FlagsBitmask    uint8      `json:"flags_bitmask"`
	LatestTimestamp int64      `json:"latest_timestamp"`
	Rounds          int        `json:"rounds"`
	Config          configJSON `json:"config"`
	Legacy          legacyJSON `json:"legacy"`
}

type flagsJSON struct {
	Fresh           bool `json:"fresh"`
	Certain         bool `json:"certain"`
	WithinDeviation bool `json:"within_deviation"`
}

type configJSON struct {
	WindowSize         int    `json:"window_size"`
	AllowedDeviation   uint64 `json:"allowed_deviation"`
	Quorum             int    `json:"quorum"`
	CertaintyThreshold int    `json:"certainty_threshold"`
	AllowedStaleness   int64  `json:"allowed_staleness_seconds"`
}

type legacyJSON struct {
	Numerator   string `json:"numerator"`
	Denominator string `json:"denominator"`
}

type submitRequest struct {
	TimestampMillis int64           `json:"timestamp_ms"`
	Reports         []reportPayload `json:"reports"`
}

type reportPayload struct {
	Provider string `json:"provider"`
	Value    string `json:"value"`
}

type submitResponse struct {
	Accepted      bool   `json:"accepted"`
	WindowAverage string `json:"window_average"`
	FlagsBitmask  uint8  `json:"flags_bitmask"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listFeeds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"feeds": h.svc.FeedIDs()})
}

func (h *Handler) getFeed(w http.ResponseWriter, r *http.Request) {
	id := feedID(r)

	// unknown feeds read as zero-valued defaults, mirroring the engine
	snap := h.svc.Snapshot(id)
	numerator, denominator := h.svc.LegacyRate(id)

	writeJSON(w, http.StatusOK, snapshotResponse(id, snap, numerator, denominator))
}

func (h *Handler) submitReports(w http.ResponseWriter, r *http.Request) {
	id := feedID(r)

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	reports := make([]report.Report, 0, len(req.Reports))
	for _, p := range req.Reports {
		if !common.IsHexAddress(p.Provider) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid provider address " + p.Provider})
			return
		}
		raw, err := uint256.FromHex(p.Value)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid report value " + p.Value})
			return
		}
		reports = append(reports, report.Report{
			Provider:        common.HexToAddress(p.Provider),
			Raw:             raw,
			TimestampMillis: req.TimestampMillis,
		})
	}

	snap, err := h.svc.SubmitRound(r.Context(), id, reports)
	if err != nil {
		h.logger.Debug().Err(err).Str("feed", id).Msg("round rejected")
		writeJSON(w, rejectionStatus(err), errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		Accepted:      true,
		WindowAverage: snap.WindowAverage.String(),
		FlagsBitmask:  snap.Flags.Bitmask(),
	})
}

func snapshotResponse(id string, snap feed.Snapshot, numerator, denominator *uint256.Int) feedResponse {
	return feedResponse{
		ID:            id,
		WindowAverage: snap.WindowAverage.String(),
		WindowSum:     snap.WindowSum.String(),
		Flags: flagsJSON{
			Fresh:           snap.Flags.Fresh,
			Certain:         snap.Flags.Certain,
			WithinDeviation: snap.Flags.WithinDeviation,
		},
		FlagsBitmask:    snap.Flags.Bitmask(),
		LatestTimestamp: snap.LatestTimestamp,
		Rounds:          snap.Rounds,
		Config: configJSON{
			WindowSize:         snap.Config.WindowSize,
			AllowedDeviation:   snap.Config.AllowedDeviation,
			Quorum:             snap.Config.Quorum,
			CertaintyThreshold: snap.Config.CertaintyThreshold,
			AllowedStaleness:   snap.Config.AllowedStaleness,
		},
		Legacy: legacyJSON{
			Numerator:   numerator.Dec(),
			Denominator: denominator.Dec(),
		},
	}
}

func rejectionStatus(err error) int {
	var unauthorized *provider.UnauthorizedError
	if errors.As(err, &unauthorized) {
		return http.StatusForbidden
	}

	var (
		quorum    *feed.QuorumNotReachedError
		certainty *feed.CertaintyThresholdError
		deviation *feed.DeviationError
		notFresh  *feed.NotFreshError
		future    *feed.TimestampFromFutureError
		overflow  *report.ValueOverflowError
		mismatch  *report.TimestampMismatchError
	)
	switch {
	case errors.As(err, &quorum),
		errors.As(err, &certainty),
		errors.As(err, &deviation),
		errors.As(err, &notFresh),
		errors.As(err, &future),
		errors.As(err, &overflow),
		errors.As(err, &mismatch),
		errors.Is(err, report.ErrEmptyBatch):
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

func feedID(r *http.Request) string {
	raw := mux.Vars(r)["id"]
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
