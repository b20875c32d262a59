package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/posledger-backend/pkg/errors"
)

type lineRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"nope","quantity":0}`))
	var body lineRequest
	err := DecodeJSONBody(req, &body)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", pkgerrors.As(err).Details())
	}
	if details["product_id"] != "must be a valid uuid" || details["quantity"] != "must be greater than 0" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"`+uuid.NewString()+`","quantity":1,"extra":true}`))
	var body lineRequest
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseQueryIntAndBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500&low_stock=true", nil)
	if _, err := ParseQueryInt(req, "limit", 25, 1, 100); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected out of range error, got %v", err)
	}
	low, err := ParseQueryBool(req, "low_stock")
	if err != nil || !low {
		t.Fatalf("expected low_stock=true, got %v %v", low, err)
	}
	if _, err := ParseQueryBool(httptest.NewRequest(http.MethodGet, "/?low_stock=maybe", nil), "low_stock"); err == nil {
		t.Fatal("expected error for non boolean")
	}
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("productId", id.String())
	rc.URLParams.Add("orderId", "bad")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := ParseUUIDParam(req, "productId")
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}
	if _, err := ParseUUIDParam(req, "orderId"); err == nil {
		t.Fatal("expected error for malformed uuid")
	}
	if _, err := ParseUUIDParam(req, "missing"); err == nil {
		t.Fatal("expected error for missing param")
	}
}

type cartRequest struct {
	Lines []lineRequest    `json:"lines" validate:"required,min=1,dive"`
	Total *decimal.Decimal `json:"total" validate:"required,money"`
}

func decode(t *testing.T, body string, dest any) map[string]string {
	t.Helper()
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), dest)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, _ := pkgerrors.As(err).Details().(map[string]string)
	return details
}

func TestDecodeJSONBodyNamesNestedFields(t *testing.T) {
	body := `{"lines":[{"product_id":"` + uuid.NewString() + `","quantity":1},{"product_id":"x","quantity":0}],"total":"1.00"}`
	details := decode(t, body, &cartRequest{})
	if details["lines[1].quantity"] != "must be greater than 0" {
		t.Fatalf("unexpected details %v", details)
	}
	if _, ok := details["lines[0].quantity"]; ok {
		t.Fatalf("valid line reported: %v", details)
	}
}

func TestDecodeJSONBodyChecksMoney(t *testing.T) {
	line := `{"product_id":"` + uuid.NewString() + `","quantity":1}`
	for _, total := range []string{`"-1"`, `"1.005"`} {
		details := decode(t, `{"lines":[`+line+`],"total":`+total+`}`, &cartRequest{})
		if details["total"] == "" {
			t.Fatalf("total %s accepted: %v", total, details)
		}
	}

	var ok cartRequest
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"lines":[`+line+`],"total":"12.50"}`))
	if err := DecodeJSONBody(req, &ok); err != nil {
		t.Fatalf("expected valid body, got %v", err)
	}
	if !ok.Total.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected total %s", ok.Total)
	}
}

func TestDecodeJSONBodyRejectsMalformedBodies(t *testing.T) {
	cases := map[string]string{
		"empty":    ``,
		"syntax":   `{"quantity":`,
		"trailing": `{"product_id":"` + uuid.NewString() + `","quantity":1}{}`,
		"too big":  `{"product_id":"` + strings.Repeat("a", MaxBodyBytes) + `"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			decode(t, body, &lineRequest{})
		})
	}
}
