package proxy

import (
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/rulescan/rulescan/internal/config"
)

type Route struct {
	ID         string
	Host       string
	PathPrefix string
	Upstream   string
	Project    string
}

// Router picks the longest matching path prefix. Host-bound routes only match
// their host and win ties against host-less ones.
type Router struct {
	routes []Route
}

func NewRouter(cfgRoutes []config.Route) *Router {
	routes := make([]Route, 0, len(cfgRoutes))
	for i, route := range cfgRoutes {
		routes = append(routes, Route{
			ID:         fmt.Sprintf("route-%d", i),
			Host:       strings.ToLower(strings.TrimSpace(route.Match.Host)),
			PathPrefix: route.Match.PathPrefix,
			Upstream:   route.Upstream,
			Project:    route.Project,
		})
	}

	sort.SliceStable(routes, func(i, j int) bool {
		if len(routes[i].PathPrefix) == len(routes[j].PathPrefix) {
			return routes[i].Host != "" && routes[j].Host == ""
		}
		return len(routes[i].PathPrefix) > len(routes[j].PathPrefix)
	})

	return &Router{routes: routes}
}

func (r *Router) Routes() []Route {
	return append([]Route(nil), r.routes...)
}

func (r *Router) Match(req *http.Request) (Route, bool) {
	if req == nil || req.URL == nil {
		return Route{}, false
	}

	host := strings.ToLower(stripPort(req.Host))
	path := req.URL.Path

	for _, route := range r.routes {
		if route.Host != "" && route.Host != host {
			continue
		}
		if strings.HasPrefix(path, route.PathPrefix) {
			return route, true
		}
	}

	return Route{}, false
}

func stripPort(hostport string) string {
	if hostport == "" {
		return ""
	}

	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}

	return hostport
}
