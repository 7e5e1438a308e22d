package config

import (
	"errors"
	"fmt"
	"os"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateListeners(); err != nil {
		return err
	}
	if err := c.validateEndpoints(); err != nil {
		return err
	}
	if err := c.validateRoutes(); err != nil {
		return err
	}
	if err := c.validateManager(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateListeners() error {
	if len(c.Listeners) == 0 {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/dcmrelay/config.toml"
		}
		return fmt.Errorf("at least one listener must be configured. Edit %s (create with 'dcmrelay config init')", defaultPath)
	}
	seen := make(map[string]struct{}, len(c.Listeners))
	outputs := make(map[string]string, len(c.Listeners))
	for i, listener := range c.Listeners {
		if listener.Name == "" {
			return fmt.Errorf("listeners[%d].name must be set", i)
		}
		if _, dup := seen[listener.Name]; dup {
			return fmt.Errorf("listener name %q is declared more than once", listener.Name)
		}
		seen[listener.Name] = struct{}{}
		if listener.AE == "" {
			return fmt.Errorf("listener %q: ae must be set", listener.Name)
		}
		if listener.Port < 1 || listener.Port > 65535 {
			return fmt.Errorf("listener %q: port must be between 1 and 65535", listener.Name)
		}
		if listener.Output == "" {
			return fmt.Errorf("listener %q: output must be set", listener.Name)
		}
		// An inbox belongs to exactly one listener; two listeners writing
		// into the same directory would have their workers fight over files.
		if owner, dup := outputs[listener.Output]; dup {
			return fmt.Errorf("listeners %q and %q share output directory %q", owner, listener.Name, listener.Output)
		}
		outputs[listener.Output] = listener.Name
	}
	return nil
}

func (c *Config) validateEndpoints() error {
	total := len(c.Endpoints.Dicom) + len(c.Endpoints.Directory)
	if total == 0 {
		return errors.New("at least one endpoint must be configured")
	}
	seen := make(map[string]struct{}, total)
	for i, endpoint := range c.Endpoints.Dicom {
		if endpoint.Name == "" {
			return fmt.Errorf("endpoints.dicom[%d].name must be set", i)
		}
		if _, dup := seen[endpoint.Name]; dup {
			return fmt.Errorf("endpoint name %q is declared more than once", endpoint.Name)
		}
		seen[endpoint.Name] = struct{}{}
		if endpoint.Addr == "" {
			return fmt.Errorf("endpoint %q: addr must be set", endpoint.Name)
		}
		if endpoint.Port < 1 || endpoint.Port > 65535 {
			return fmt.Errorf("endpoint %q: port must be between 1 and 65535", endpoint.Name)
		}
		if endpoint.AEC == "" {
			return fmt.Errorf("endpoint %q: aec must be set", endpoint.Name)
		}
		if endpoint.AET == "" {
			return fmt.Errorf("endpoint %q: aet must be set", endpoint.Name)
		}
	}
	for i, endpoint := range c.Endpoints.Directory {
		if endpoint.Name == "" {
			return fmt.Errorf("endpoints.directory[%d].name must be set", i)
		}
		if _, dup := seen[endpoint.Name]; dup {
			return fmt.Errorf("endpoint name %q is declared more than once", endpoint.Name)
		}
		seen[endpoint.Name] = struct{}{}
		if endpoint.Path == "" {
			return fmt.Errorf("endpoint %q: path must be set", endpoint.Name)
		}
		info, err := os.Stat(endpoint.Path)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("endpoint %q: path %q is not an existing directory", endpoint.Name, endpoint.Path)
		}
	}
	return nil
}

// validateRoutes checks that every route links an existing listener to
// existing endpoints. A route is named after the listener whose inbox it
// drains, and each entry in its endpoint list must resolve to a declared
// endpoint.
func (c *Config) validateRoutes() error {
	listeners := make(map[string]struct{}, len(c.Listeners))
	for _, listener := range c.Listeners {
		listeners[listener.Name] = struct{}{}
	}
	endpoints := make(map[string]struct{}, len(c.Endpoints.Dicom)+len(c.Endpoints.Directory))
	for _, name := range c.EndpointNames() {
		endpoints[name] = struct{}{}
	}

	seen := make(map[string]struct{}, len(c.Routes))
	for i, route := range c.Routes {
		if route.Name == "" {
			return fmt.Errorf("routes[%d].name must be set", i)
		}
		if _, dup := seen[route.Name]; dup {
			return fmt.Errorf("route %q is declared more than once", route.Name)
		}
		seen[route.Name] = struct{}{}
		if _, ok := listeners[route.Name]; !ok {
			return fmt.Errorf("route %q does not match any configured listener", route.Name)
		}
		if len(route.Endpoints) == 0 {
			return fmt.Errorf("route %q must list at least one endpoint", route.Name)
		}
		for _, target := range route.Endpoints {
			if _, ok := endpoints[target]; !ok {
				return fmt.Errorf("route %q references unknown endpoint %q", route.Name, target)
			}
		}
	}
	return nil
}

func (c *Config) validateManager() error {
	if c.Manager.MaxStopAttempts < 1 {
		return errors.New("manager.max_stop_attempts must be at least 1")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.BufferSize < 0 {
		return errors.New("workers.buffer_size must be >= 0")
	}
	if c.Workers.MinFileAgeSeconds < 0 {
		return errors.New("workers.min_file_age_seconds must be >= 0")
	}
	if c.Workers.IdlePollSeconds < 1 {
		return errors.New("workers.idle_poll_seconds must be at least 1")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be >= 0")
	}
	return nil
}
