package provider

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultRouteKey - маршрут для стадий, которых нет в файле.
const DefaultRouteKey = "default"

// Target - пара провайдер/модель.
type Target struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

func (t Target) String() string { return t.Provider + "/" + t.Model }

// Route - основной провайдер и необязательный резервный.
type Route struct {
	Primary  Target  `yaml:"primary"`
	Fallback *Target `yaml:"fallback,omitempty"`
}

// Routes - содержимое файла маршрутов.
type Routes struct {
	Default Route            `yaml:"default"`
	Stages  map[string]Route `yaml:"stages"`
}

// LoadRoutes читает YAML с маршрутами.
func LoadRoutes(path string) (Routes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Routes{}, fmt.Errorf("failed to read provider routes %s: %w", path, err)
	}
	return ParseRoutes(data)
}

// ParseRoutes разбирает YAML; маршрут default обязателен.
func ParseRoutes(data []byte) (Routes, error) {
	var routes Routes
	if err := yaml.Unmarshal(data, &routes); err != nil {
		return Routes{}, fmt.Errorf("failed to parse provider routes: %w", err)
	}
	if routes.Default.Primary.Provider == "" {
		return Routes{}, errors.New("provider routes: default route is required")
	}
	return routes, nil
}

// Registry - явная таблица маршрутов и адаптеров. Создается один раз при старте.
type Registry struct {
	routes    Routes
	providers map[string]Provider
}

// NewRegistry проверяет, что каждый упомянутый в маршрутах провайдер подключен.
func NewRegistry(routes Routes, providers ...Provider) (*Registry, error) {
	r := &Registry{
		routes:    routes,
		providers: make(map[string]Provider, len(providers)),
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}

	check := func(stage string, route Route) error {
		if _, ok := r.providers[route.Primary.Provider]; !ok {
			return fmt.Errorf("route %s: provider %q is not configured", stage, route.Primary.Provider)
		}
		if route.Fallback != nil {
			if _, ok := r.providers[route.Fallback.Provider]; !ok {
				return fmt.Errorf("route %s: fallback provider %q is not configured", stage, route.Fallback.Provider)
			}
		}
		return nil
	}
	if err := check(DefaultRouteKey, routes.Default); err != nil {
		return nil, err
	}
	for stage, route := range routes.Stages {
		if err := check(stage, route); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Route возвращает маршрут стадии или default.
func (r *Registry) Route(stage string) Route {
	if route, ok := r.routes.Stages[stage]; ok {
		return route
	}
	return r.routes.Default
}

// Provider возвращает адаптер по имени.
func (r *Registry) Provider(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}
