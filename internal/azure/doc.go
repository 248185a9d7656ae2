// Package azure retrieves billing data from Azure Cost Management.
//
// Two retrieval paths are supported:
//   - Monthly usage queries through the Cost Management query API,
//     returning per-day costs grouped by service and resource group.
//   - Asynchronous cost details reports: request a report for a date
//     range, poll the returned operation URL until the report is ready,
//     then download and stream the CSV rows.
//
// Authentication uses a service principal (tenant, client ID, client
// secret). Clients can target the public cloud or Azure China.
package azure
