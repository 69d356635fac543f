package models

import "encoding/json"

// Event types delivered by Clerk that this service reconciles.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// EventPayload is the parsed body of a Clerk webhook delivery.
type EventPayload struct {
	Data   *UserData `json:"data"`
	Object string    `json:"object"`
	Type   string    `json:"type"`
}

// UserData is the user object carried in Clerk webhook payloads.
// Collection and nested-object fields stay raw; the service stores them
// verbatim and never interprets their internal shape.
type UserData struct {
	ID                    string `json:"id"`
	Username              string `json:"username"`
	FirstName             string `json:"first_name"`
	LastName              string `json:"last_name"`
	ImageURL              string `json:"image_url"`
	ProfileImageURL       string `json:"profile_image_url"`
	ExternalID            string `json:"external_id"`
	PrimaryEmailAddressID string `json:"primary_email_address_id"`
	PrimaryPhoneNumberID  string `json:"primary_phone_number_id"`
	PrimaryWeb3WalletID   string `json:"primary_web3_wallet_id"`

	BackupCodeEnabled         bool `json:"backup_code_enabled"`
	Banned                    bool `json:"banned"`
	CreateOrganizationEnabled bool `json:"create_organization_enabled"`
	DeleteSelfEnabled         bool `json:"delete_self_enabled"`
	HasImage                  bool `json:"has_image"`
	Locked                    bool `json:"locked"`
	PasswordEnabled           bool `json:"password_enabled"`
	TOTPEnabled               bool `json:"totp_enabled"`
	TwoFactorEnabled          bool `json:"two_factor_enabled"`

	// Epoch milliseconds. Clerk sends null for timestamps that never
	// happened; null leaves the zero value in place.
	CreatedAt       int64 `json:"created_at"`
	UpdatedAt       int64 `json:"updated_at"`
	LastActiveAt    int64 `json:"last_active_at"`
	LastSignInAt    int64 `json:"last_sign_in_at"`
	LegalAcceptedAt int64 `json:"legal_accepted_at"`
	MFAEnabledAt    int64 `json:"mfa_enabled_at"`
	MFADisabledAt   int64 `json:"mfa_disabled_at"`

	EmailAddresses   json.RawMessage `json:"email_addresses"`
	PhoneNumbers     json.RawMessage `json:"phone_numbers"`
	Web3Wallets      json.RawMessage `json:"web3_wallets"`
	ExternalAccounts json.RawMessage `json:"external_accounts"`
	Passkeys         json.RawMessage `json:"passkeys"`
	SAMLAccounts     json.RawMessage `json:"saml_accounts"`

	PrivateMetadata json.RawMessage `json:"private_metadata"`
	PublicMetadata  json.RawMessage `json:"public_metadata"`
	UnsafeMetadata  json.RawMessage `json:"unsafe_metadata"`
}

// EmailAddress is a single entry of the email_addresses collection.
type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// PrimaryEmail returns the first email address in the payload, or "".
func (d *UserData) PrimaryEmail() string {
	if len(d.EmailAddresses) == 0 {
		return ""
	}
	var addrs []EmailAddress
	if err := json.Unmarshal(d.EmailAddresses, &addrs); err != nil || len(addrs) == 0 {
		return ""
	}
	return addrs[0].EmailAddress
}
