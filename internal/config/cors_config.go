package config

import (
	"sort"
	"strings"
)

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func NewAllowedOrigins(origins ...string) AllowedOrigins {
	a := make(AllowedOrigins, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			a[o] = nullValue{}
		}
	}
	return a
}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	sort.Strings(origins)
	return strings.Join(origins, ", ")
}

func (c *Config) GetAllowedOrigins() AllowedOrigins {
	return NewAllowedOrigins(c.Server.AllowedOrigins...)
}

func (c *Config) GetAllowedMethods() string {
	return "GET, POST, OPTIONS"
}

func (c *Config) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}
