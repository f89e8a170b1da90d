// Package config handles loading and validating NHC bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Per-controller defaults (port 8884, user "hobby", 10s reconnect)
//   - Overriding with environment variables
//   - Validation of controller connection settings and Hobby API tokens
//
// Security Considerations:
//   - Controller tokens should be set via NHCBRIDGE_CONTROLLER_<ID>_TOKEN
//   - The config file should have restricted permissions (0600)
//   - Tokens are only parsed for structure here; the controller verifies them
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, c := range cfg.Controllers {
//	    fmt.Println(c.ID, c.Addr())
//	}
package config
