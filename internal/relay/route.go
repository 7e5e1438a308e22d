package relay

import (
	"fmt"

	"dcmrelay/internal/config"
	"dcmrelay/internal/endpoint"
)

// Route binds a listener inbox to the endpoints its files fan out to.
type Route struct {
	Name      string
	Dir       string
	Endpoints []endpoint.Endpoint
}

// EndpointNames returns the endpoint names in fan-out order.
func (r Route) EndpointNames() []string {
	names := make([]string, 0, len(r.Endpoints))
	for _, ep := range r.Endpoints {
		names = append(names, ep.Name())
	}
	return names
}

// BuildRoutes resolves configured routes against the endpoint set. The inbox
// directory comes from the listener the route is named after. Validation has
// already checked the links, so a failure here indicates the config and
// endpoint set drifted apart.
func BuildRoutes(cfg *config.Config, endpoints map[string]endpoint.Endpoint) ([]Route, error) {
	routes := make([]Route, 0, len(cfg.Routes))
	for _, spec := range cfg.Routes {
		listener, ok := cfg.ListenerByName(spec.Name)
		if !ok {
			return nil, fmt.Errorf("route %s: no listener with that name", spec.Name)
		}
		route := Route{
			Name:      spec.Name,
			Dir:       listener.Output,
			Endpoints: make([]endpoint.Endpoint, 0, len(spec.Endpoints)),
		}
		for _, target := range spec.Endpoints {
			ep, ok := endpoints[target]
			if !ok {
				return nil, fmt.Errorf("route %s: unknown endpoint %s", spec.Name, target)
			}
			route.Endpoints = append(route.Endpoints, ep)
		}
		routes = append(routes, route)
	}
	return routes, nil
}
