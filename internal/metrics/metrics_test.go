package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T) string {
	t.Helper()
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	return rr.Body.String()
}

func TestMealsRecorded(t *testing.T) {
	MealsRecorded.WithLabelValues("VEG").Inc()
	if body := scrape(t); !strings.Contains(body, `mealtracker_meals_recorded_total{type="VEG"}`) {
		t.Fatalf("labelled counter missing from exposition")
	}
}

func TestHandler(t *testing.T) {
	RateLimited.Inc()
	if !strings.Contains(scrape(t), "mealtracker_http_rate_limited_total") {
		t.Fatalf("metric missing from exposition")
	}
}
