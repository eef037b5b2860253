// Package config loads robotmon configuration.
//
// Values are resolved in layers, each overriding only the keys it sets:
//
//  1. built-in defaults (Defaults)
//  2. configuration files added with Loader.AddLayer, JSON or YAML
//  3. ROBOTMON_* environment variables
//
// Command line flags are applied on top by the caller. Durations are written
// as Go duration strings:
//
//	session:
//	  host: 192.168.1.200
//	  credentials_file: /etc/robotmon/robot_credentials
//	  reconnect:
//	    max_attempts: 5
//	    initial_delay: 1s
//	control:
//	  read_timeout: 750ms
package config
