package export

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(svc *Service) *echo.Echo {
	e := echo.New()
	NewHandler(svc).RegisterRoutes(e.Group("/api"))
	return e
}

func doRequest(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Export(t *testing.T) {
	e := newTestServer(newTestService(&fakeDoc{}, &fakeHTML{}, &fakeSummary{}))

	body := `{
		"measure": "{\"id\":\"hqmf-1\",\"cmsId\":\"CMS122v12\",\"title\":\"Diabetes\"}",
		"sourceDataCriteria": [{"type": "Diagnosis", "oid": "1.2.3", "description": "Diagnosis: Diabetes"}],
		"testCases": [
			{"title": "DenomPass", "series": "Diabetes", "json": "{\"birthDatetime\":\"1970-05-01T00:00:00.000+00:00\",\"dataElements\":[]}"},
			{"title": "Broken", "series": "Diabetes", "json": "]["}
		],
		"options": {"start_time": "2026-01-01", "end_time": "2026-12-31"}
	}`
	rec := doRequest(e, http.MethodPut, "/api/qrda", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Export-Run-ID"))

	var resp struct {
		IndividualReports []struct {
			Filename  string  `json:"filename"`
			QRDA      *string `json:"qrda"`
			Report    *string `json:"report"`
			QRDAError string  `json:"qrdaError"`
		} `json:"individualReports"`
		SummaryReport struct {
			CMSID      string            `json:"cmsId"`
			QRDAErrors map[string]string `json:"qrdaErrors"`
			HTML       string            `json:"html"`
		} `json:"summaryReport"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.IndividualReports, 2)
	assert.Equal(t, "1_Diabetes_DenomPass", resp.IndividualReports[0].Filename)
	require.NotNil(t, resp.IndividualReports[0].QRDA)
	assert.Nil(t, resp.IndividualReports[1].QRDA)
	assert.Nil(t, resp.IndividualReports[1].Report)
	assert.Contains(t, resp.IndividualReports[1].QRDAError, "malformed")
	assert.Equal(t, "CMS122v12", resp.SummaryReport.CMSID)
	assert.Contains(t, resp.SummaryReport.QRDAErrors, "1")
	assert.Equal(t, "<html>summary</html>", resp.SummaryReport.HTML)
}

func TestHandler_ExportIsolatesBadTestCaseShapes(t *testing.T) {
	e := newTestServer(newTestService(&fakeDoc{}, &fakeHTML{}, &fakeSummary{}))

	patient := `"{\"birthDatetime\":\"1970-05-01T00:00:00.000+00:00\",\"dataElements\":[]}"`
	body := `{
		"measure": {"id": "hqmf-1", "cmsId": "CMS122v12", "title": "Diabetes"},
		"testCases": [
			{"title": "First", "series": "Good", "json": ` + patient + `,
			 "groupPopulations": [{"populationValues": [{"name": "initialPopulation", "expected": true}]}]},
			{"title": "Nested", "series": "Object", "json": {"birthDatetime": "1970-05-01T00:00:00.000+00:00"}},
			{"title": "NoExpect", "series": "Odd", "json": ` + patient + `, "groupPopulations": {}},
			"not a test case",
			{"title": "Last", "series": "Good", "json": ` + patient + `}
		]
	}`
	rec := doRequest(e, http.MethodPut, "/api/qrda", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		IndividualReports []struct {
			Filename    string  `json:"filename"`
			QRDA        *string `json:"qrda"`
			QRDAError   string  `json:"qrdaError"`
			ReportError string  `json:"reportError"`
		} `json:"individualReports"`
		SummaryReport struct {
			TestCaseCount int               `json:"testCaseCount"`
			PatientCount  int               `json:"patientCount"`
			QRDAErrors    map[string]string `json:"qrdaErrors"`
		} `json:"summaryReport"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.IndividualReports, 5)
	names := make([]string, 0, 5)
	for _, r := range resp.IndividualReports {
		names = append(names, r.Filename)
	}
	assert.Equal(t, []string{"1_Good_First", "2_Object_Nested", "3_Odd_NoExpect", "4__", "5_Good_Last"}, names)

	for _, i := range []int{0, 2, 4} {
		assert.NotNil(t, resp.IndividualReports[i].QRDA, names[i])
		assert.Empty(t, resp.IndividualReports[i].QRDAError, names[i])
	}
	for _, i := range []int{1, 3} {
		r := resp.IndividualReports[i]
		assert.Nil(t, r.QRDA, names[i])
		assert.Contains(t, r.QRDAError, "malformed", names[i])
		assert.Contains(t, r.ReportError, "malformed", names[i])
	}
	assert.Contains(t, resp.IndividualReports[1].QRDAError, "json must be a string")

	assert.Equal(t, 5, resp.SummaryReport.TestCaseCount)
	assert.Equal(t, 3, resp.SummaryReport.PatientCount)
	assert.Len(t, resp.SummaryReport.QRDAErrors, 2)
}

func TestHandler_ExportErrors(t *testing.T) {
	e := newTestServer(newTestService(&fakeDoc{}, &fakeHTML{}, &fakeSummary{}))

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "missing measure", body: `{"testCases": []}`, status: http.StatusBadRequest, code: CodeInvalidMeasure},
		{name: "null measure", body: `{"measure": null}`, status: http.StatusBadRequest, code: CodeInvalidMeasure},
		{name: "garbage measure", body: `{"measure": "{nope"}`, status: http.StatusBadRequest, code: CodeInvalidMeasure},
		{
			name:   "unsupported criteria",
			body:   `{"measure": {"id": "x"}, "sourceDataCriteria": [{"type": "Teleportation"}]}`,
			status: http.StatusBadRequest,
			code:   CodeUnsupportedCriteriaType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, http.MethodPut, "/api/qrda", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var er ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
			assert.Equal(t, tt.code, er.Error)
			assert.NotEmpty(t, er.Message)
		})
	}

	rec := doRequest(e, http.MethodPut, "/api/qrda", `{"measure":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ListRuns(t *testing.T) {
	e := newTestServer(newTestService(&fakeDoc{}, &fakeHTML{}, nil))
	rec := doRequest(e, http.MethodGet, "/api/exports", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	runs := &fakeRuns{}
	e = newTestServer(newTestService(&fakeDoc{}, &fakeHTML{}, nil, WithRunRepository(runs)))
	for i := 0; i < 3; i++ {
		rec := doRequest(e, http.MethodPut, "/api/qrda", `{"measure": {"id": "m"}, "testCases": []}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = doRequest(e, http.MethodGet, "/api/exports?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Data    []ExportRun `json:"data"`
		Total   int         `json:"total"`
		HasMore bool        `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Data, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "CMS0v0", page.Data[0].CMSID)

	rec = doRequest(e, http.MethodGet, "/api/exports?limit=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
