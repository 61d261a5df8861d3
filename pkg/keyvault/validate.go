package keyvault

import "regexp"

const maxSecretNameLength = 127

var (
	secretNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*[A-Za-z0-9]$`)
	singleCharPattern = regexp.MustCompile(`^[A-Za-z]$`)
)

// validateSecretName enforces Key Vault secret naming: 1-127 characters,
// letters, digits and hyphens, starting with a letter and not ending with a
// hyphen.
func validateSecretName(name string) error {
	if name == "" {
		return &InvalidSecretNameError{Name: name, Reason: "name is empty"}
	}
	if len(name) > maxSecretNameLength {
		return &InvalidSecretNameError{Name: name, Reason: "name exceeds 127 characters"}
	}
	if len(name) == 1 {
		if !singleCharPattern.MatchString(name) {
			return &InvalidSecretNameError{Name: name, Reason: "name must start with a letter"}
		}
		return nil
	}
	if !secretNamePattern.MatchString(name) {
		return &InvalidSecretNameError{
			Name:   name,
			Reason: "name must start with a letter, contain only letters, digits and hyphens, and not end with a hyphen",
		}
	}
	return nil
}
