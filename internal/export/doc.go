// Package export writes billing records to CSV files with a fixed column
// order.
package export
