// Package huawei retrieves resource-level billing records from the Huawei
// Cloud Billing Center. Requests are signed with the API Gateway
// SDK-HMAC-SHA256 scheme implemented in this package.
package huawei
