package config

// Default configuration values.
const (
	DefaultWarehouseType = "trino"
	DefaultWarehousePort = 443
	DefaultStagingDriver = "sqlite"
	DefaultStagingPath   = "onprem_products.db"
	DefaultOutputDir     = "."
)

// DefaultProducts are the product lines reported on when none are
// configured.
func DefaultProducts() []string {
	return []string{"Cb Protection", "Cb Response", "Cb Response Cloud"}
}

// ApplyDefaults fills unset fields of c with default values.
func ApplyDefaults(c *Config) {
	if c == nil {
		return
	}
	if c.Warehouse.Type == "" {
		c.Warehouse.Type = DefaultWarehouseType
	}
	if c.Warehouse.Port == 0 {
		c.Warehouse.Port = DefaultWarehousePort
	}
	if c.Staging.Driver == "" {
		c.Staging.Driver = DefaultStagingDriver
	}
	if c.Staging.Path == "" {
		c.Staging.Path = DefaultStagingPath
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = DefaultOutputDir
	}
	if len(c.Products) == 0 {
		c.Products = DefaultProducts()
	}
}
