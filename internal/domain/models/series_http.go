package models

import "encoding/json"

// SeriesRequest asks for a fused OHLCV window for one instrument.
// Credentials, when present, hot-swap the active service account
// before the request is served.
type SeriesRequest struct {
	Symbol      string          `json:"symbol" validate:"required,min=1,max=64"`
	StartDate   string          `json:"start_date"`
	EndDate     string          `json:"end_date"`
	Granularity string          `json:"granularity" default:"daily" validate:"oneof=daily intraday"`
	Credentials json.RawMessage `json:"credentials,omitempty"`
}

// SeriesRow is one bar on the wire. Date is "2006-01-02" for daily
// rows and "2006-01-02 15:04:05" for intraday rows.
type SeriesRow struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// SeriesResponse is the envelope returned by the series endpoint.
type SeriesResponse struct {
	Success    bool        `json:"success"`
	Data       []SeriesRow `json:"data,omitempty"`
	Source     SourceLabel `json:"source,omitempty"`
	Rows       int         `json:"rows"`
	FuzzyMatch bool        `json:"fuzzy_match,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// StatusRequest optionally hot-swaps credentials before reporting state.
type StatusRequest struct {
	Credentials json.RawMessage `json:"credentials,omitempty"`
}

// StatusResponse reports connection state for both backends.
type StatusResponse struct {
	Success        bool          `json:"success"`
	WarehouseReady bool          `json:"warehouse_ready"`
	OracleReady    bool          `json:"oracle_ready"`
	ActiveProject  string        `json:"active_project,omitempty"`
	ResolvedFrom   string        `json:"resolved_from,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
	QuotaRemaining int           `json:"quota_remaining"`
	RecentErrors   []StatusError `json:"recent_errors,omitempty"`
}

// StatusError is one retained error from the in-process history.
type StatusError struct {
	Message  string `json:"message"`
	Count    int    `json:"count"`
	LastSeen string `json:"last_seen"`
}

// OracleRequest is an opaque analysis payload forwarded upstream.
type OracleRequest struct {
	Payload json.RawMessage `json:"payload" validate:"required"`
}
