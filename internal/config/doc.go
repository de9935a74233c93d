// Package config provides centralized configuration management for the
// Sofia runtime: a JSON configuration file with typed sections for the HTTP
// server, authentication, model providers, market data sources, and the
// blockchain event scanner, with sensible defaults applied on load.
package config
