// Package config provides shared configuration types for fieldscope.
// This package is decoupled from CLI concerns so the engine and tests can
// build configurations directly.
package config

// Config holds all pipeline configuration options.
type Config struct {
	Warehouse WarehouseConfig `koanf:"warehouse"`
	Staging   StagingConfig   `koanf:"staging"`
	Report    ReportConfig    `koanf:"report"`
	Products  []string        `koanf:"products"`
	Verbose   bool            `koanf:"verbose"`
}

// WarehouseConfig holds the remote warehouse connection settings.
type WarehouseConfig struct {
	Type     string `koanf:"type"` // trino, postgres
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Catalog  string `koanf:"catalog"`
	Schema   string `koanf:"schema"`
}

// StagingConfig holds the local staging store settings.
type StagingConfig struct {
	Driver string `koanf:"driver"` // sqlite, duckdb
	Path   string `koanf:"path"`
}

// ReportConfig holds the report writer settings.
type ReportConfig struct {
	OutputDir string `koanf:"output_dir"`
}
