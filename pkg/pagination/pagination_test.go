package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor("")
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := paramsFor("?limit=50&offset=10")
	if p.Limit != 50 || p.Offset != 10 {
		t.Errorf("expected 50/10, got %d/%d", p.Limit, p.Offset)
	}
}

func TestFromContext_PageParams(t *testing.T) {
	p := paramsFor("?page=3&per_page=25")
	if p.Limit != 25 || p.Offset != 50 {
		t.Errorf("expected 25/50, got %d/%d", p.Limit, p.Offset)
	}

	p = paramsFor("?page=0")
	if p.Offset != 0 {
		t.Errorf("expected offset 0 for page 0, got %d", p.Offset)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	if p := paramsFor("?limit=500"); p.Limit != MaxLimit {
		t.Errorf("expected limit capped at %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_InvalidValues(t *testing.T) {
	p := paramsFor("?limit=abc&offset=-5")
	if p.Limit != DefaultLimit || p.Offset != 0 {
		t.Errorf("expected defaults, got %d/%d", p.Limit, p.Offset)
	}
}

func TestNewResponse(t *testing.T) {
	tests := []struct {
		name                 string
		total, limit, offset int
		hasMore              bool
	}{
		{"first page of many", 45, 20, 0, true},
		{"last partial page", 45, 20, 40, false},
		{"exact fit", 40, 20, 20, false},
		{"empty", 0, 20, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResponse([]string{}, tt.total, tt.limit, tt.offset)
			if r.HasMore != tt.hasMore {
				t.Errorf("HasMore = %v, want %v", r.HasMore, tt.hasMore)
			}
			if r.Total != tt.total || r.Limit != tt.limit || r.Offset != tt.offset {
				t.Errorf("unexpected response %+v", r)
			}
		})
	}
}
