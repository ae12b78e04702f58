// Package config provides centralized configuration management for the
// stream manager service.
//
// It handles configuration loading, validation, and hot reload, and
// provides type-safe access to every service configuration section.
//
// Key features:
//   - YAML configuration file loading with Viper
//   - Environment variable override support (STREAMVAULT_* prefix)
//   - Hot reload with file system watching, debounced against rapid
//     successive writes
//   - Change classification: a changed field either requires a process
//     restart (listen ports, bind addresses) or is applied at runtime
//   - Default value management and validation with meaningful errors
package config
