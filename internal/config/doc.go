// Package config loads process settings from the environment and parses the
// initial node list.
package config
