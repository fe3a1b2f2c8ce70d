package proxy

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/rulescan/rulescan/internal/config"
)

func TestRouterMatchLongestPrefix(t *testing.T) {
	router := NewRouter([]config.Route{
		{Match: config.RouteMatch{PathPrefix: "/api"}, Project: "a"},
		{Match: config.RouteMatch{PathPrefix: "/api/v1"}, Project: "b"},
	})

	req := &http.Request{URL: &url.URL{Path: "/api/v1/users"}, Host: "example.com"}
	route, ok := router.Match(req)
	if !ok {
		t.Fatal("expected route match")
	}
	if route.PathPrefix != "/api/v1" || route.Project != "b" {
		t.Fatalf("expected /api/v1 for project b, got %q %q", route.PathPrefix, route.Project)
	}
}

func TestRouterMatchHost(t *testing.T) {
	router := NewRouter([]config.Route{
		{Match: config.RouteMatch{Host: "Example.com", PathPrefix: "/"}},
		{Match: config.RouteMatch{Host: "", PathPrefix: "/"}},
	})

	req := &http.Request{URL: &url.URL{Path: "/"}, Host: "example.com:8443"}
	route, ok := router.Match(req)
	if !ok {
		t.Fatal("expected route match")
	}
	if route.Host != "example.com" {
		t.Fatalf("expected host match example.com, got %q", route.Host)
	}

	route, ok = router.Match(&http.Request{URL: &url.URL{Path: "/"}, Host: "other.test"})
	if !ok || route.Host != "" {
		t.Fatalf("expected catch-all route, got %+v", route)
	}
}
