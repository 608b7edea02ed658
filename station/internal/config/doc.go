// Package config loads and watches the station configuration file.
//
// Top-level types:
//   - Config: the full tree parsed from station.yaml
//   - StationConfig: name, data_dir, datalog and gp_vars paths, http_addr, auth
//   - TableConfig: a rating table given as a CSV file or inline points
//   - PacingConfig, SamplerConfig: the sampler program and its device
//   - FlowMeterConfig, CameraConfig: optional devices with a power line
//   - measure.Config entries under measurements
//   - uplink.Config for the MQTT broker
//
// Load(path) reads the YAML file, applies defaults, resolves relative paths
// against data_dir and validates names and cross references.
//
// Watch(ctx, path, onChange) reloads the file on change with fsnotify. A
// file that fails to load is logged and the running config is kept.
package config
