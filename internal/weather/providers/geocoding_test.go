package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGeocodingSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") != "Zarautz" || r.URL.Query().Get("count") != "5" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"name":"Zarautz","latitude":43.28444,"longitude":-2.16996,"timezone":"Europe/Madrid","country":"Spain","admin1":"Basque Country","country_code":"ES"}]}`))
	}))
	defer srv.Close()

	client := NewGeocodingClient(srv.Client(), srv.URL)
	places, err := client.Search(context.Background(), "Zarautz", "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(places) != 1 {
		t.Fatalf("expected 1 place, got %d", len(places))
	}
	if places[0].CountryCode != "ES" || places[0].Latitude != 43.28444 {
		t.Errorf("unexpected place %+v", places[0])
	}
}

func TestGeocodingNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"generationtime_ms":0.5}`))
	}))
	defer srv.Close()

	client := NewGeocodingClient(srv.Client(), srv.URL)
	places, err := client.Search(context.Background(), "nowhere", "es")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if places == nil || len(places) != 0 {
		t.Errorf("expected empty slice, got %v", places)
	}
}
