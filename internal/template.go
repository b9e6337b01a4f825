package internal

import "strings"

// CodePlaceholder is the literal token tenant message templates must contain.
const CodePlaceholder = "${verificationCode}"

// RenderVerificationMessage substitutes every occurrence of the verification
// code placeholder in the tenant's template. Templates are validated to
// contain the placeholder before they reach this point.
func RenderVerificationMessage(template, code string) string {
	return strings.ReplaceAll(template, CodePlaceholder, code)
}
