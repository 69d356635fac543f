package usersync

import (
	"encoding/json"

	"github.com/systemsaholic/clerk-sync/internal/models"
)

// MapMetadata translates a Clerk user payload into the ordered local
// metadata layout. Every sync overwrites the full set; nothing is merged,
// so a field cleared upstream cannot linger locally.
//
// Collection and nested-object fields are stored as raw JSON text. Their
// internal shape is not interpreted; round-trip fidelity is the only
// contract.
func MapMetadata(d *models.UserData) models.Metadata {
	return models.Metadata{
		{Key: "clerk_id", Value: d.ID},
		{Key: "clerk_created_at", Value: d.CreatedAt},
		{Key: "clerk_updated_at", Value: d.UpdatedAt},
		{Key: "clerk_image_url", Value: d.ImageURL},
		{Key: "clerk_profile_image_url", Value: d.ProfileImageURL},

		{Key: "clerk_backup_code_enabled", Value: d.BackupCodeEnabled},
		{Key: "clerk_banned", Value: d.Banned},
		{Key: "clerk_create_organization_enabled", Value: d.CreateOrganizationEnabled},
		{Key: "clerk_delete_self_enabled", Value: d.DeleteSelfEnabled},
		{Key: "clerk_has_image", Value: d.HasImage},
		{Key: "clerk_locked", Value: d.Locked},
		{Key: "clerk_password_enabled", Value: d.PasswordEnabled},
		{Key: "clerk_totp_enabled", Value: d.TOTPEnabled},
		{Key: "clerk_two_factor_enabled", Value: d.TwoFactorEnabled},

		{Key: "clerk_last_active_at", Value: d.LastActiveAt},
		{Key: "clerk_last_sign_in_at", Value: d.LastSignInAt},
		{Key: "clerk_legal_accepted_at", Value: d.LegalAcceptedAt},
		{Key: "clerk_mfa_enabled_at", Value: d.MFAEnabledAt},
		{Key: "clerk_mfa_disabled_at", Value: d.MFADisabledAt},

		{Key: "clerk_external_id", Value: d.ExternalID},
		{Key: "clerk_primary_email_address_id", Value: d.PrimaryEmailAddressID},
		{Key: "clerk_primary_phone_number_id", Value: d.PrimaryPhoneNumberID},
		{Key: "clerk_primary_web3_wallet_id", Value: d.PrimaryWeb3WalletID},

		{Key: "clerk_email_addresses", Value: rawOrDefault(d.EmailAddresses, "[]")},
		{Key: "clerk_phone_numbers", Value: rawOrDefault(d.PhoneNumbers, "[]")},
		{Key: "clerk_web3_wallets", Value: rawOrDefault(d.Web3Wallets, "[]")},
		{Key: "clerk_external_accounts", Value: rawOrDefault(d.ExternalAccounts, "[]")},
		{Key: "clerk_passkeys", Value: rawOrDefault(d.Passkeys, "[]")},
		{Key: "clerk_saml_accounts", Value: rawOrDefault(d.SAMLAccounts, "[]")},

		{Key: "clerk_private_metadata", Value: rawOrDefault(d.PrivateMetadata, "{}")},
		{Key: "clerk_public_metadata", Value: rawOrDefault(d.PublicMetadata, "{}")},
		{Key: "clerk_unsafe_metadata", Value: rawOrDefault(d.UnsafeMetadata, "{}")},
	}
}

func rawOrDefault(raw json.RawMessage, def string) string {
	s := string(raw)
	if s == "" || s == "null" {
		return def
	}
	return s
}
