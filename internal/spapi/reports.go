package spapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const reportsPath = "/reports/2021-06-30/reports"

// RequestReportInput schedules one report.
type RequestReportInput struct {
	ReportType    string
	Marketplaces  []string
	DataStartTime string
	DataEndTime   string
}

// RequestReport schedules a report and returns its id for later polling.
func (s *Service) RequestReport(ctx context.Context, in RequestReportInput) (*Result, error) {
	if !ReportTypes[in.ReportType] {
		return nil, NewError(KindInvalidInput, fmt.Sprintf("unknown report type %q", in.ReportType), nil)
	}
	mkts, err := ValidateMarketplaces(in.Marketplaces)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"reportType": in.ReportType,
	}
	ids := make([]string, len(mkts))
	for i, m := range mkts {
		ids[i] = m.ID
	}
	body["marketplaceIds"] = ids

	var start, end time.Time
	if in.DataStartTime != "" {
		start, err = ValidateISO8601("data_start_time", in.DataStartTime)
		if err != nil {
			return nil, err
		}
		body["dataStartTime"] = start.UTC().Format(time.RFC3339)
	}
	if in.DataEndTime != "" {
		end, err = ValidateISO8601("data_end_time", in.DataEndTime)
		if err != nil {
			return nil, err
		}
		if !start.IsZero() && !end.After(start) {
			return nil, NewError(KindInvalidInput, "data_end_time must be after data_start_time", nil)
		}
		body["dataEndTime"] = end.UTC().Format(time.RFC3339)
	}

	encoded, _ := json.Marshal(body)
	resp, err := s.client.Do(ctx, Request{
		Method:      "POST",
		Route:       reportsPath,
		Path:        reportsPath,
		Body:        encoded,
		Marketplace: mkts[0],
	})
	if err != nil {
		return nil, err
	}

	var created struct {
		ReportID string `json:"reportId"`
	}
	if err := json.Unmarshal(resp.Body, &created); err != nil || created.ReportID == "" {
		return nil, NewError(KindAPIError, "malformed create report response", err)
	}
	return &Result{
		Data: map[string]any{
			"report_id":   created.ReportID,
			"report_type": in.ReportType,
		},
		Meta: Metadata{"request_id": resp.RequestID, "marketplace": mkts[0].Code},
	}, nil
}

// GetReport fetches the processing state of one report, including the
// document id once the report is done.
func (s *Service) GetReport(ctx context.Context, reportID, marketplace string) (*Result, error) {
	if strings.TrimSpace(reportID) == "" {
		return nil, NewError(KindInvalidInput, "report_id must not be empty", nil)
	}
	mkt, err := s.resolveMarketplace(marketplace)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(ctx, Request{
		Method:      "GET",
		Route:       reportsPath + "/{reportId}",
		Path:        fmt.Sprintf("%s/%s", reportsPath, url.PathEscape(reportID)),
		Marketplace: mkt,
	})
	if err != nil {
		return nil, err
	}
	var report map[string]any
	if err := json.Unmarshal(resp.Body, &report); err != nil {
		return nil, NewError(KindAPIError, "malformed report response", err)
	}
	return &Result{
		Data: report,
		Meta: Metadata{"request_id": resp.RequestID, "marketplace": mkt.Code},
	}, nil
}
