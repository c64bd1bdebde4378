// Package types defines the KPI entity types, the Store interface, status
// and calculation-method constants, and standard error values for the Beacon
// progress rollup engine.
package types
