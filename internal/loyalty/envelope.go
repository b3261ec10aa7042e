package loyalty

import "encoding/json"

// Field names and casing in this file mirror the backend's wire contract
// exactly. The backend is a fixed external revision; do not "clean up" the
// JSON tags.

type requestVersionInfo struct {
	ModuleVersion string `json:"moduleVersion"`
	APIVersion    string `json:"apiVersion"`
}

type apiRequest struct {
	VersionInfo     requestVersionInfo `json:"versionInfo"`
	ViewName        string             `json:"viewName"`
	InputParameters any                `json:"inputParameters"`
}

type responseVersionInfo struct {
	HasModuleVersionChanged bool `json:"hasModuleVersionChanged"`
	HasAPIVersionChanged    bool `json:"hasApiVersionChanged"`
}

type apiResponse struct {
	VersionInfo responseVersionInfo `json:"versionInfo"`
	Data        json.RawMessage     `json:"data"`
}

type smsCodeParams struct {
	PhoneNumber string `json:"phoneNumber"`
}

type smsCodeData struct {
	IsSmsSent        bool   `json:"isSmsSent"`
	IsBlocked        bool   `json:"isBlocked"`
	BlockedInMinutes int    `json:"blockedInMinutes"`
	ErrorMessage     string `json:"errorMessage"`
}

type nextStepParams struct {
	PhoneNumber string `json:"phoneNumber"`
}

type nextStepData struct {
	NextStep string `json:"nextStep"`
}

type loginParams struct {
	PhoneNumber string `json:"phoneNumber"`
	SmsCode     string `json:"smsCode"`
}

type loginData struct {
	CardNumber         string `json:"cardNumber"`
	ExternalCustomerID string `json:"externalCustomerId"`
	AuthToken          string `json:"authToken"`
}

type registerParams struct {
	PhoneNumber      string   `json:"phoneNumber"`
	SmsCode          string   `json:"smsCode"`
	Name             string   `json:"name"`
	Email            string   `json:"email"`
	DateOfBirth      string   `json:"dateOfBirth"`
	Locale           string   `json:"locale"`
	StoreID          string   `json:"storeId"`
	LegalDocumentIDs []string `json:"acceptedLegalDocumentIds"`
}

type offerParams struct {
	J4yCacheRefresh string `json:"J4yCacheRefresh"`
}

type offerData struct {
	J4y offerList `json:"J4y"`
}

type offerList struct {
	List []offerElement `json:"List"`
}

type offerElement struct {
	OfferType           string `json:"OfferType"`
	OfferIDExt          string `json:"OfferIdExt"`
	Name                string `json:"Name"`
	PromotionTime       string `json:"PromotionTime"`
	Description         string `json:"Description"`
	PromoPrice          string `json:"PromoPrice"`
	RegularPrice        string `json:"RegularPrice"`
	Discount            int    `json:"Discount"`
	TagTopLine          string `json:"TagTopLine"`
	TagBottomLine       string `json:"TagBottomLine"`
	PromoDetails        string `json:"PromoDetails"`
	PricePerUnit        string `json:"PricePerUnit"`
	Limits              string `json:"Limits"`
	RegularPricePerUnit string `json:"RegularPricePerUnit"`
	ProductURL          string `json:"ProductURL"`
	ThumbURL            string `json:"ThumbURL"`
	ImageURL            string `json:"ImageURL"`
	FullScreenImageURL  string `json:"FullScreenImageURL"`
}
