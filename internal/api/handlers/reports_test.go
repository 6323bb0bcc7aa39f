package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coinfolio/taxledger-backend/internal/api/request"
	"github.com/coinfolio/taxledger-backend/internal/connector"
	"github.com/coinfolio/taxledger-backend/internal/model"
	"github.com/coinfolio/taxledger-backend/internal/repository"
	"github.com/coinfolio/taxledger-backend/internal/service"
	"github.com/coinfolio/taxledger-backend/internal/testutil"
)

func defaultTestPolicy() model.TaxPolicy {
	return model.TaxPolicy{
		TaxFreePeriodDays:      365,
		IncludeCryptoToCrypto:  true,
		AccountForMarginEvents: true,
		ReferenceCurrency:      "EUR",
	}
}

// blockingAdapter keeps a run alive until it is cancelled.
type blockingAdapter struct{}

func (a *blockingAdapter) Name() string { return "blocking" }

func (a *blockingAdapter) FetchRecords(ctx context.Context, _, _ time.Time) ([]connector.RawRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (a *blockingAdapter) MapRecord(_ connector.RawRecord) ([]model.AccountingEvent, error) {
	return nil, nil
}

func newReportTestHandler(t *testing.T, adapters []connector.Adapter) (*ReportHandler, *service.ReportService) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	repo := repository.NewReportRepository(db)
	factory := func(_ context.Context) ([]connector.Adapter, error) {
		return adapters, nil
	}
	svc := service.NewReportService(factory, testutil.FixedSource("100"), nil, nil, repo)
	return NewReportHandler(svc, defaultTestPolicy()), svc
}

func manualAdapters(events []model.AccountingEvent) []connector.Adapter {
	return []connector.Adapter{connector.NewManualAdapter("manual", events)}
}

func waitForRun(t *testing.T, svc *service.ReportService, id string) model.ReportRun {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		status, err := svc.GetStatus(id)
		if err != nil {
			t.Fatalf("Failed to get run status: %v", err)
		}
		if status.Status.Terminal() {
			return status
		}
		select {
		case <-deadline:
			t.Fatalf("Run %s did not terminate, status %s", id, status.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func createReportBody() request.CreateReportRequest {
	return request.CreateReportRequest{
		StartTime: testutil.Day(0).Format(time.RFC3339),
		EndTime:   testutil.Day(365).Format(time.RFC3339),
	}
}

func TestCreateReport(t *testing.T) {
	events := []model.AccountingEvent{
		testutil.BuyEvent(testutil.Day(0), "BTC", "1", "1000"),
		testutil.SellEvent(testutil.Day(30), "BTC", "1", "1500"),
	}
	handler, svc := newReportTestHandler(t, manualAdapters(events))

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/report", createReportBody(), nil)
	rec := httptest.NewRecorder()
	handler.CreateReport(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp CreateReportResponse
	testutil.DecodeJSONResponse(t, rec, &resp)
	if resp.ID == "" {
		t.Fatal("Expected run ID in response")
	}

	status := waitForRun(t, svc, resp.ID)
	if status.Status != model.RunDone {
		t.Errorf("Expected run done, got %s", status.Status)
	}
}

func TestCreateReport_InvalidBody(t *testing.T) {
	handler, _ := newReportTestHandler(t, manualAdapters(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/report", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.CreateReport(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid JSON, got %d", rec.Code)
	}
}

func TestCreateReport_UnknownField(t *testing.T) {
	handler, _ := newReportTestHandler(t, manualAdapters(nil))

	body := map[string]string{
		"startTime": testutil.Day(0).Format(time.RFC3339),
		"endTime":   testutil.Day(365).Format(time.RFC3339),
		"surprise":  "field",
	}
	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/report", body, nil)
	rec := httptest.NewRecorder()
	handler.CreateReport(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown field, got %d", rec.Code)
	}
}

func TestCreateReport_ValidationFailure(t *testing.T) {
	handler, _ := newReportTestHandler(t, manualAdapters(nil))

	body := createReportBody()
	body.EndTime = testutil.Day(-10).Format(time.RFC3339)
	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/report", body, nil)
	rec := httptest.NewRecorder()
	handler.CreateReport(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for inverted range, got %d", rec.Code)
	}
}

func TestCreateReport_Conflict(t *testing.T) {
	handler, svc := newReportTestHandler(t, []connector.Adapter{&blockingAdapter{}})

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/report", createReportBody(), nil)
	rec := httptest.NewRecorder()
	handler.CreateReport(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", rec.Code)
	}
	var resp CreateReportResponse
	testutil.DecodeJSONResponse(t, rec, &resp)

	req = testutil.NewJSONRequest(t, http.MethodPost, "/api/report", createReportBody(), nil)
	rec = httptest.NewRecorder()
	handler.CreateReport(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409 while a run is live, got %d", rec.Code)
	}

	if err := svc.Cancel(resp.ID); err != nil {
		t.Fatalf("Failed to cancel run: %v", err)
	}
	waitForRun(t, svc, resp.ID)
}

func TestReportStatus(t *testing.T) {
	events := []model.AccountingEvent{
		testutil.BuyEvent(testutil.Day(0), "BTC", "1", "1000"),
		testutil.SellEvent(testutil.Day(30), "BTC", "1", "1500"),
	}
	handler, svc := newReportTestHandler(t, manualAdapters(events))

	id, err := svc.StartReport("default", testutil.Day(0), testutil.Day(365), defaultTestPolicy())
	if err != nil {
		t.Fatalf("Failed to start report: %v", err)
	}
	waitForRun(t, svc, id)

	req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/report/"+id, map[string]string{"uuid": id})
	rec := httptest.NewRecorder()
	handler.ReportStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var run model.ReportRun
	testutil.DecodeJSONResponse(t, rec, &run)
	if run.Status != model.RunDone {
		t.Errorf("Expected run done, got %s", run.Status)
	}
	if len(run.Records) != 0 {
		t.Errorf("Expected status without records, got %d", len(run.Records))
	}
}

func TestReportStatus_NotFound(t *testing.T) {
	handler, _ := newReportTestHandler(t, manualAdapters(nil))

	id := testutil.MakeID()
	req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/report/"+id, map[string]string{"uuid": id})
	rec := httptest.NewRecorder()
	handler.ReportStatus(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestCancelReport(t *testing.T) {
	handler, svc := newReportTestHandler(t, []connector.Adapter{&blockingAdapter{}})

	id, err := svc.StartReport("default", testutil.Day(0), testutil.Day(365), defaultTestPolicy())
	if err != nil {
		t.Fatalf("Failed to start report: %v", err)
	}

	req := testutil.NewRequestWithURLParams(http.MethodPost, "/api/report/"+id+"/cancel", map[string]string{"uuid": id})
	rec := httptest.NewRecorder()
	handler.CancelReport(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", rec.Code)
	}
	status := waitForRun(t, svc, id)
	if status.Status != model.RunCancelled {
		t.Errorf("Expected run cancelled, got %s", status.Status)
	}
}

func TestCancelReport_NotFound(t *testing.T) {
	handler, _ := newReportTestHandler(t, manualAdapters(nil))

	id := testutil.MakeID()
	req := testutil.NewRequestWithURLParams(http.MethodPost, "/api/report/"+id+"/cancel", map[string]string{"uuid": id})
	rec := httptest.NewRecorder()
	handler.CancelReport(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestReportResult(t *testing.T) {
	events := []model.AccountingEvent{
		testutil.BuyEvent(testutil.Day(0), "BTC", "1", "1000"),
		testutil.SellEvent(testutil.Day(30), "BTC", "1", "1500"),
	}
	handler, svc := newReportTestHandler(t, manualAdapters(events))

	id, err := svc.StartReport("default", testutil.Day(0), testutil.Day(365), defaultTestPolicy())
	if err != nil {
		t.Fatalf("Failed to start report: %v", err)
	}
	waitForRun(t, svc, id)

	req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/report/"+id+"/result", map[string]string{"uuid": id})
	rec := httptest.NewRecorder()
	handler.ReportResult(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var run model.ReportRun
	testutil.DecodeJSONResponse(t, rec, &run)
	if len(run.Records) != 1 {
		t.Errorf("Expected 1 record in result, got %d", len(run.Records))
	}
	if !run.Totals.TotalGainLoss.Equal(testutil.Dec("500")) {
		t.Errorf("Expected total gain 500, got %s", run.Totals.TotalGainLoss)
	}
}

func TestReportResult_NotReady(t *testing.T) {
	handler, svc := newReportTestHandler(t, []connector.Adapter{&blockingAdapter{}})

	id, err := svc.StartReport("default", testutil.Day(0), testutil.Day(365), defaultTestPolicy())
	if err != nil {
		t.Fatalf("Failed to start report: %v", err)
	}

	req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/report/"+id+"/result", map[string]string{"uuid": id})
	rec := httptest.NewRecorder()
	handler.ReportResult(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409 while running, got %d", rec.Code)
	}

	if err := svc.Cancel(id); err != nil {
		t.Fatalf("Failed to cancel run: %v", err)
	}
	waitForRun(t, svc, id)
}

func TestReportResult_Cancelled(t *testing.T) {
	handler, svc := newReportTestHandler(t, []connector.Adapter{&blockingAdapter{}})

	id, err := svc.StartReport("default", testutil.Day(0), testutil.Day(365), defaultTestPolicy())
	if err != nil {
		t.Fatalf("Failed to start report: %v", err)
	}
	if err := svc.Cancel(id); err != nil {
		t.Fatalf("Failed to cancel run: %v", err)
	}
	waitForRun(t, svc, id)

	req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/report/"+id+"/result", map[string]string{"uuid": id})
	rec := httptest.NewRecorder()
	handler.ReportResult(rec, req)

	if rec.Code != http.StatusGone {
		t.Errorf("Expected status 410 for cancelled run, got %d", rec.Code)
	}
}

func TestReportResult_NotFound(t *testing.T) {
	handler, _ := newReportTestHandler(t, manualAdapters(nil))

	id := testutil.MakeID()
	req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/report/"+id+"/result", map[string]string{"uuid": id})
	rec := httptest.NewRecorder()
	handler.ReportResult(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestAllReports(t *testing.T) {
	events := []model.AccountingEvent{
		testutil.BuyEvent(testutil.Day(0), "BTC", "1", "1000"),
		testutil.SellEvent(testutil.Day(30), "BTC", "1", "1500"),
	}
	handler, svc := newReportTestHandler(t, manualAdapters(events))

	id, err := svc.StartReport("default", testutil.Day(0), testutil.Day(365), defaultTestPolicy())
	if err != nil {
		t.Fatalf("Failed to start report: %v", err)
	}
	waitForRun(t, svc, id)

	req := httptest.NewRequest(http.MethodGet, "/api/report", nil)
	rec := httptest.NewRecorder()
	handler.AllReports(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var reports []model.ReportRun
	testutil.DecodeJSONResponse(t, rec, &reports)
	if len(reports) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(reports))
	}
	if reports[0].ID != id {
		t.Errorf("Expected report %s, got %s", id, reports[0].ID)
	}
}
