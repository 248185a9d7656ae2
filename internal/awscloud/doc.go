// Package awscloud retrieves monthly billing data from AWS Cost Explorer,
// grouped by service.
package awscloud
