package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/api"
	"github.com/clinic/clinic/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *fixture, *echo.Echo) {
	f := newFixture(t)
	e := echo.New()
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.ErrorHandler
	return NewHandler(f.svc), f, e
}

func asStaff(req *http.Request, staff uuid.UUID, roles ...string) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), staff.String(), roles))
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return asStaff(req, staffS1, auth.RoleBilling)
}

func emptyRequest(method string) *http.Request {
	return asStaff(httptest.NewRequest(method, "/", nil), staffS1, auth.RoleBilling)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// -- Billing Handler Tests --

func TestHandler_OpenBilling(t *testing.T) {
	h, f, e := newTestHandler(t)
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"patient_id":"`+f.patientID.String()+`"}`), rec)

	require.NoError(t, h.OpenBilling(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	billing := body["billing"].(map[string]interface{})
	assert.Equal(t, "pending", billing["payment_status"])
	assert.Equal(t, "open", billing["state"])
	assert.Equal(t, "0", billing["total_amount"])
}

func TestHandler_OpenBilling_BadRequests(t *testing.T) {
	h, f, e := newTestHandler(t)
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"missing patient", `{}`, http.StatusBadRequest},
		{"malformed uuid", `{"patient_id":"abc"}`, http.StatusBadRequest},
		{"unknown patient", `{"patient_id":"` + uuid.New().String() + `"}`, http.StatusUnprocessableEntity},
		{"inactive patient", `{"patient_id":"` + f.inactive.String() + `"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(jsonRequest(http.MethodPost, tt.body), rec)
			require.NoError(t, h.OpenBilling(c))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, false, decodeBody(t, rec)["success"])
		})
	}
}

func TestHandler_OpenBilling_Unauthenticated(t *testing.T) {
	h, f, e := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"patient_id":"`+f.patientID.String()+`"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, h.OpenBilling(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_GetBilling(t *testing.T) {
	h, f, e := newTestHandler(t)
	b := f.open(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(emptyRequest(http.MethodGet), rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())

	require.NoError(t, h.GetBilling(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, b.ID.String(), decodeBody(t, rec)["billing"].(map[string]interface{})["id"])
}

func TestHandler_GetBilling_Errors(t *testing.T) {
	h, _, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(emptyRequest(http.MethodGet), rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	require.NoError(t, h.GetBilling(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	c = e.NewContext(emptyRequest(http.MethodGet), rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	require.NoError(t, h.GetBilling(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "billing not found", decodeBody(t, rec)["message"])
}

func TestHandler_ListBillings(t *testing.T) {
	h, f, e := newTestHandler(t)
	f.open(t)
	f.open(t)
	f.open(t)

	req := emptyRequest(http.MethodGet)
	req.URL.RawQuery = "limit=2&payment_status=pending&patient_id=" + f.patientID.String()
	rec := httptest.NewRecorder()
	require.NoError(t, h.ListBillings(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 2, body["limit"])
	assert.Equal(t, true, body["has_more"])
	assert.Len(t, body["billing"], 2)
}

func TestHandler_ListBillings_BadQuery(t *testing.T) {
	h, _, e := newTestHandler(t)
	for _, q := range []string{"patient_id=xyz", "include_deleted=perhaps", "payment_status=refunded"} {
		req := emptyRequest(http.MethodGet)
		req.URL.RawQuery = q
		rec := httptest.NewRecorder()
		require.NoError(t, h.ListBillings(e.NewContext(req, rec)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestHandler_ListBillingsForPatient(t *testing.T) {
	h, f, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(emptyRequest(http.MethodGet), rec)
	c.SetParamNames("patient_id")
	c.SetParamValues(f.patientID.String())
	require.NoError(t, h.ListBillingsForPatient(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.open(t)
	rec = httptest.NewRecorder()
	c = e.NewContext(emptyRequest(http.MethodGet), rec)
	c.SetParamNames("patient_id")
	c.SetParamValues(f.patientID.String())
	require.NoError(t, h.ListBillingsForPatient(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["billing"], 1)
}

func TestHandler_ToggleDeleteBilling(t *testing.T) {
	h, f, e := newTestHandler(t)
	b := f.open(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(emptyRequest(http.MethodPatch), rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	require.NoError(t, h.ToggleDeleteBilling(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["billing"].(map[string]interface{})["is_deleted"])
}

func TestHandler_FinalizeBilling(t *testing.T) {
	h, f, e := newTestHandler(t)
	b := f.open(t)
	f.add(t, b.ID, f.consult)
	f.add(t, b.ID, f.lab)

	rec := httptest.NewRecorder()
	req := asStaff(httptest.NewRequest(http.MethodPost, "/", nil), staffS2, auth.RoleBilling)
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	require.NoError(t, h.FinalizeBilling(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	billing := decodeBody(t, rec)["billing"].(map[string]interface{})
	assert.Equal(t, "150.5", billing["total_amount"])
	assert.Equal(t, "paid", billing["payment_status"])
	assert.Equal(t, "finalized", billing["state"])
	assert.Equal(t, staffS2.String(), billing["finalized_by"])

	rec = httptest.NewRecorder()
	c = e.NewContext(emptyRequest(http.MethodPost), rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	require.NoError(t, h.FinalizeBilling(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "billing is already finalized", decodeBody(t, rec)["message"])
}

// -- Item Handler Tests --

func TestHandler_AddItem(t *testing.T) {
	h, f, e := newTestHandler(t)
	b := f.open(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"service_id":"`+f.lab.String()+`","quantity":2}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	require.NoError(t, h.AddItem(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	item := decodeBody(t, rec)["item"].(map[string]interface{})
	assert.Equal(t, "101", item["subtotal"])
	assert.EqualValues(t, 2, item["quantity"])
}

func TestHandler_AddItem_DefaultQuantity(t *testing.T) {
	h, f, e := newTestHandler(t)
	b := f.open(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"service_id":"`+f.consult.String()+`","unit_price":"80.25"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	require.NoError(t, h.AddItem(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	item := decodeBody(t, rec)["item"].(map[string]interface{})
	assert.EqualValues(t, 1, item["quantity"])
	assert.Equal(t, "80.25", item["subtotal"])
}

func TestHandler_AddItem_Finalized(t *testing.T) {
	h, f, e := newTestHandler(t)
	b := f.open(t)
	f.add(t, b.ID, f.consult)
	_, err := f.svc.FinalizeBilling(context.Background(), b.ID, staffS1)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"service_id":"`+f.lab.String()+`"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	require.NoError(t, h.AddItem(c))
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestHandler_AddItem_UnknownService(t *testing.T) {
	h, f, e := newTestHandler(t)
	b := f.open(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"service_id":"`+uuid.New().String()+`"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	require.NoError(t, h.AddItem(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandler_AddItem_OutOfRange(t *testing.T) {
	h, f, e := newTestHandler(t)
	b := f.open(t)

	for _, body := range []string{
		`{"service_id":"` + f.consult.String() + `","quantity":3000000000}`,
		`{"service_id":"` + f.consult.String() + `","unit_price":"10000000000000"}`,
	} {
		rec := httptest.NewRecorder()
		c := e.NewContext(jsonRequest(http.MethodPost, body), rec)
		c.SetParamNames("id")
		c.SetParamValues(b.ID.String())
		require.NoError(t, h.AddItem(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, false, decodeBody(t, rec)["success"])
	}
	assert.Empty(t, f.items.items)
}

func TestHandler_ListItems(t *testing.T) {
	h, f, e := newTestHandler(t)
	b := f.open(t)
	f.add(t, b.ID, f.consult)

	rec := httptest.NewRecorder()
	c := e.NewContext(emptyRequest(http.MethodGet), rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	require.NoError(t, h.ListItems(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["items"], 1)
}

func TestHandler_UpdateItem(t *testing.T) {
	h, f, e := newTestHandler(t)
	b := f.open(t)
	it := f.add(t, b.ID, f.consult)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPatch, `{"quantity":3}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(it.ID.String())
	require.NoError(t, h.UpdateItem(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "300", decodeBody(t, rec)["item"].(map[string]interface{})["subtotal"])

	rec = httptest.NewRecorder()
	c = e.NewContext(jsonRequest(http.MethodPatch, `{"quantity":0}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(it.ID.String())
	require.NoError(t, h.UpdateItem(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ToggleDeleteItem(t *testing.T) {
	h, f, e := newTestHandler(t)
	b := f.open(t)
	it := f.add(t, b.ID, f.consult)

	rec := httptest.NewRecorder()
	c := e.NewContext(emptyRequest(http.MethodPatch), rec)
	c.SetParamNames("id")
	c.SetParamValues(it.ID.String())
	require.NoError(t, h.ToggleDeleteItem(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["item"].(map[string]interface{})["is_deleted"])
}

func TestHandler_RoutesEnforceRoles(t *testing.T) {
	h, f, e := newTestHandler(t)
	g := e.Group("/api/v1")
	h.RegisterRoutes(g)

	// staff may read but not write
	req := asStaff(httptest.NewRequest(http.MethodGet, "/api/v1/billings", nil), staffS1, auth.RoleStaff)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := `{"patient_id":"` + f.patientID.String() + `"}`
	req = asStaff(httptest.NewRequest(http.MethodPost, "/api/v1/billings", strings.NewReader(body)), staffS1, auth.RoleStaff)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["success"])

	req = asStaff(httptest.NewRequest(http.MethodPost, "/api/v1/billings", strings.NewReader(body)), staffS1, auth.RoleAdmin)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
