package pagination

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, target string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor(t, "/")
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := paramsFor(t, "/?limit=50&offset=10")
	if p.Limit != 50 {
		t.Errorf("expected limit 50, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	p := paramsFor(t, "/?limit=500")
	if p.Limit != MaxLimit {
		t.Errorf("expected limit clamped to %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_InvalidValues(t *testing.T) {
	p := paramsFor(t, "/?limit=abc&offset=-5")
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit, got %d", p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestNewPage(t *testing.T) {
	first := NewPage([]string{"a", "b"}, 5, Params{Limit: 2})
	if first.Total != 5 || first.Limit != 2 || first.Offset != 0 {
		t.Errorf("unexpected page %+v", first)
	}
	if !first.HasMore {
		t.Error("expected HasMore with 5 total and first page of 2")
	}

	last := NewPage([]string{"e"}, 5, Params{Limit: 2, Offset: 4})
	if last.HasMore {
		t.Error("expected no more results on last page")
	}
}

func TestNewPage_NilItemsEncodeAsEmptyArray(t *testing.T) {
	var none []int
	body, err := json.Marshal(NewPage(none, 0, Params{Limit: DefaultLimit}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"data":[],"total":0,"limit":20,"offset":0,"hasMore":false}`
	if string(body) != want {
		t.Errorf("got %s, want %s", body, want)
	}
}
