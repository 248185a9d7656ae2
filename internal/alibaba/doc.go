// Package alibaba provides an Alibaba Cloud BSS OpenAPI billing client.
//
// The client wraps the Alibaba Cloud SDK's CommonRequest transport and
// implements two queries against the business.aliyuncs.com endpoint
// (version 2017-12-14):
//   - DescribeInstanceBill: instance-level bill for a YYYY-MM cycle, with
//     optional daily granularity
//   - DescribeInstanceAmortizedCostByAmortizationPeriod: amortized cost of
//     prepaid commitments spread across their usage period
//
// Both queries follow NextToken pagination automatically, preserving the
// provider's native record order across pages. A malformed billing cycle
// fails with billing.ValidationError before any HTTP request is issued.
//
// ParseTag decodes the "key:K value:V; ..." tag strings that appear in bill
// exports.
package alibaba
