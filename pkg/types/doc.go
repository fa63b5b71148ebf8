// Package types defines the metric record model, the Repository interface,
// the metric ordering policies, and the standard errors shared by the
// fmlearn storage backends, the recommendation engine, and the CLI.
package types
