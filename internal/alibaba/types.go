package alibaba

import "github.com/softwareone-finops/cloud-billing/internal/billing"

// InstanceBillItem is one line item of the DescribeInstanceBill response.
// Field names follow the BSS OpenAPI wire format.
type InstanceBillItem struct {
	ProductName           string  `json:"ProductName"`
	ProductCode           string  `json:"ProductCode"`
	ProductType           string  `json:"ProductType"`
	ProductDetail         string  `json:"ProductDetail"`
	InstanceID            string  `json:"InstanceID"`
	InstanceSpec          string  `json:"InstanceSpec"`
	InstanceConfig        string  `json:"InstanceConfig"`
	BillAccountID         string  `json:"BillAccountID"`
	BillAccountName       string  `json:"BillAccountName"`
	OwnerID               string  `json:"OwnerID"`
	BillingDate           string  `json:"BillingDate"`
	BillingType           string  `json:"BillingType"`
	BillingItem           string  `json:"BillingItem"`
	SubscriptionType      string  `json:"SubscriptionType"`
	Item                  string  `json:"Item"`
	ItemName              string  `json:"ItemName"`
	Usage                 string  `json:"Usage"`
	UsageUnit             string  `json:"UsageUnit"`
	ListPrice             string  `json:"ListPrice"`
	ListPriceUnit         string  `json:"ListPriceUnit"`
	PretaxGrossAmount     float64 `json:"PretaxGrossAmount"`
	PretaxAmount          float64 `json:"PretaxAmount"`
	PaymentAmount         float64 `json:"PaymentAmount"`
	OutstandingAmount     float64 `json:"OutstandingAmount"`
	AfterDiscountAmount   float64 `json:"AfterDiscountAmount"`
	InvoiceDiscount       float64 `json:"InvoiceDiscount"`
	DeductedByCoupons     float64 `json:"DeductedByCoupons"`
	DeductedByCashCoupons float64 `json:"DeductedByCashCoupons"`
	DeductedByPrepaidCard float64 `json:"DeductedByPrepaidCard"`
	AdjustAmount          float64 `json:"AdjustAmount"`
	CashAmount            float64 `json:"CashAmount"`
	Currency              string  `json:"Currency"`
	CostUnit              string  `json:"CostUnit"`
	ResourceGroup         string  `json:"ResourceGroup"`
	Region                string  `json:"Region"`
	Zone                  string  `json:"Zone"`
	NickName              string  `json:"NickName"`
	IntranetIP            string  `json:"IntranetIP"`
	InternetIP            string  `json:"InternetIP"`
	Tag                   string  `json:"Tag"`
	CommodityCode         string  `json:"CommodityCode"`
	PipCode               string  `json:"PipCode"`
	ServicePeriod         string  `json:"ServicePeriod"`
	ServicePeriodUnit     string  `json:"ServicePeriodUnit"`
	BizType               string  `json:"BizType"`
}

// Record converts a bill item to the provider-neutral form. The billing
// cycle is used as the period when the item carries no daily billing date.
func (it InstanceBillItem) Record(cycle string) billing.Record {
	period := it.BillingDate
	if period == "" {
		period = cycle
	}
	return billing.Record{
		Provider:      billing.ProviderAlibaba,
		AccountID:     it.BillAccountID,
		AccountName:   it.BillAccountName,
		BillingPeriod: period,
		Product:       it.ProductName,
		InstanceID:    it.InstanceID,
		Cost:          it.PretaxAmount,
		PayableAmount: it.PaymentAmount,
		Currency:      it.Currency,
		UsageQuantity: it.Usage,
		UsageUnit:     it.UsageUnit,
		Region:        it.Region,
		ResourceGroup: it.ResourceGroup,
		ChargeType:    it.SubscriptionType,
		Extensions: map[string]string{
			"CommodityCode": it.CommodityCode,
			"CostUnit":      it.CostUnit,
			"Item":          it.Item,
			"Tag":           it.Tag,
		},
	}
}

type instanceBillData struct {
	BillingCycle string             `json:"BillingCycle"`
	AccountID    string             `json:"AccountID"`
	AccountName  string             `json:"AccountName"`
	TotalCount   int                `json:"TotalCount"`
	NextToken    string             `json:"NextToken"`
	MaxResults   int                `json:"MaxResults"`
	Items        []InstanceBillItem `json:"Items"`
}

type instanceBillResponse struct {
	RequestID string           `json:"RequestId"`
	Code      string           `json:"Code"`
	Message   string           `json:"Message"`
	Success   bool             `json:"Success"`
	Data      instanceBillData `json:"Data"`
}

// AmortizedItem is one line item of the
// DescribeInstanceAmortizedCostByAmortizationPeriod response, trimmed to the
// columns the toolkit consumes.
type AmortizedItem struct {
	ProductName        string `json:"ProductName"`
	ProductCode        string `json:"ProductCode"`
	ProductDetail      string `json:"ProductDetail"`
	InstanceID         string `json:"InstanceID"`
	BillAccountID      string `json:"BillAccountID"`
	BillAccountName    string `json:"BillAccountName"`
	BillOwnerID        string `json:"BillOwnerID"`
	BillOwnerName      string `json:"BillOwnerName"`
	SubscriptionType   string `json:"SubscriptionType"`
	AmortizationPeriod string `json:"AmortizationPeriod"`
	AmortizationStatus string `json:"AmortizationStatus"`
	ConsumePeriod      string `json:"ConsumePeriod"`
	CostUnit           string `json:"CostUnit"`
	ResourceGroup      string `json:"ResourceGroup"`
	Region             string `json:"Region"`
	Zone               string `json:"Zone"`
	Tag                string `json:"Tag"`

	PretaxAmount                         float64 `json:"PretaxAmount"`
	PretaxGrossAmount                    float64 `json:"PretaxGrossAmount"`
	ExpenditureAmount                    float64 `json:"ExpenditureAmount"`
	CurrentAmortizationPretaxAmount      float64 `json:"CurrentAmortizationPretaxAmount"`
	CurrentAmortizationExpenditureAmount float64 `json:"CurrentAmortizationExpenditureAmount"`
	PreviouslyAmortizedPretaxAmount      float64 `json:"PreviouslyAmortizedPretaxAmount"`
	RemainingAmortizationPretaxAmount    float64 `json:"RemainingAmortizationPretaxAmount"`
	InvoiceDiscount                      float64 `json:"InvoiceDiscount"`
	RoundDownDiscount                    float64 `json:"RoundDownDiscount"`
	DeductedByCoupons                    float64 `json:"DeductedByCoupons"`
	DeductedByCashCoupons                float64 `json:"DeductedByCashCoupons"`
	DeductedByPrepaidCard                float64 `json:"DeductedByPrepaidCard"`
}

// Record converts an amortized item to the provider-neutral form.
func (it AmortizedItem) Record() billing.Record {
	return billing.Record{
		Provider:      billing.ProviderAlibaba,
		AccountID:     it.BillAccountID,
		AccountName:   it.BillAccountName,
		BillingPeriod: it.AmortizationPeriod,
		Product:       it.ProductName,
		InstanceID:    it.InstanceID,
		Cost:          it.PretaxAmount,
		PayableAmount: it.CurrentAmortizationPretaxAmount,
		Region:        it.Region,
		ResourceGroup: it.ResourceGroup,
		ChargeType:    it.SubscriptionType,
		Extensions: map[string]string{
			"AmortizationStatus": it.AmortizationStatus,
			"ConsumePeriod":      it.ConsumePeriod,
			"CostUnit":           it.CostUnit,
			"Tag":                it.Tag,
		},
	}
}

type amortizedData struct {
	AccountID   string          `json:"AccountID"`
	AccountName string          `json:"AccountName"`
	TotalCount  int             `json:"TotalCount"`
	NextToken   string          `json:"NextToken"`
	MaxResults  int             `json:"MaxResults"`
	Items       []AmortizedItem `json:"Items"`
}

type amortizedResponse struct {
	RequestID string        `json:"RequestId"`
	Code      string        `json:"Code"`
	Message   string        `json:"Message"`
	Success   bool          `json:"Success"`
	Data      amortizedData `json:"Data"`
}
