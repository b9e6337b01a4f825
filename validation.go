package twofa

import (
	"strings"

	"github.com/5giotlead/twofa/internal"
	"github.com/pquerna/otp"
)

// validateProviderConfig checks a single tenant-level provider entry. It is
// pure: invoked per entry on every settings write, before anything commits.
func validateProviderConfig(config ProviderConfig) error {
	switch config.Type {
	case ProviderTOTP:
		if config.TOTP == nil {
			return validationErrorf("totp", "totp provider config is missing")
		}
		if strings.TrimSpace(config.TOTP.IssuerName) == "" {
			return validationErrorf("issuerName", "issuer name must not be blank")
		}
	case ProviderSMS:
		if config.SMS == nil {
			return validationErrorf("sms", "sms provider config is missing")
		}
		if !strings.Contains(config.SMS.VerificationMessageTemplate, internal.CodePlaceholder) {
			return validationErrorf("verificationMessageTemplate",
				"verification message template must contain verification code placeholder")
		}
	case ProviderEmail:
		if config.Email == nil {
			return validationErrorf("email", "email provider config is missing")
		}
		if !strings.Contains(config.Email.VerificationMessageTemplate, internal.CodePlaceholder) {
			return validationErrorf("verificationMessageTemplate",
				"verification message template must contain verification code placeholder")
		}
	case ProviderBackupCode:
		return ErrProviderNotSupported
	default:
		return ErrProviderNotSupported
	}
	return nil
}

// validateAccountConfig checks the shape of a candidate or committed account
// config before it is used for verification or persisted.
func validateAccountConfig(config AccountConfig) error {
	switch config.Type {
	case ProviderTOTP:
		if config.TOTP == nil || config.TOTP.SecretBase32 == "" {
			return validationErrorf("secret", "totp secret must not be empty")
		}
		if config.TOTP.AuthURI != "" {
			if _, err := otp.NewKeyFromURL(config.TOTP.AuthURI); err != nil {
				return validationErrorf("authUri", "auth uri is not a valid otpauth url")
			}
		}
	case ProviderSMS:
		if config.SMS == nil || strings.TrimSpace(config.SMS.PhoneNumber) == "" {
			return validationErrorf("phoneNumber", "phone number must not be blank")
		}
	case ProviderEmail:
		if config.Email == nil || strings.TrimSpace(config.Email.Email) == "" {
			return validationErrorf("email", "email must not be blank")
		}
	case ProviderBackupCode:
		return ErrProviderNotSupported
	default:
		return ErrProviderNotSupported
	}
	return nil
}

// destination returns the out-of-band delivery address of an account config,
// empty for self-contained providers.
func destination(config AccountConfig) string {
	switch config.Type {
	case ProviderSMS:
		if config.SMS != nil {
			return config.SMS.PhoneNumber
		}
	case ProviderEmail:
		if config.Email != nil {
			return config.Email.Email
		}
	}
	return ""
}
