package models

type Tenant struct {
	TenantID string                 `json:"tenantId"`
	Data     map[string]interface{} `json:"data"`
}
