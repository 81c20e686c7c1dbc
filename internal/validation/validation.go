package validation

import (
	"fmt"
	"strings"
	"unicode"

	"wagate/internal/constants"
	"wagate/internal/errors"
)

// ValidateClientID checks the session identifier used for account rows,
// queue routing and on-disk artifact directories. The charset is strict
// because the ID becomes part of a filesystem path.
func ValidateClientID(clientID string) error {
	if clientID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "client ID cannot be empty")
	}

	if len(clientID) > constants.MaxClientIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("client ID too long (max %d characters)", constants.MaxClientIDLength))
	}

	for _, char := range clientID {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '_' && char != '-' {
			return errors.New(errors.ErrCodeInvalidInput,
				"client ID must contain only letters, numbers, underscores, and dashes")
		}
	}

	return nil
}

// ValidateRecipient checks a destination identifier before normalization.
// Group chat IDs carry a creator number plus a creation timestamp joined by
// a hyphen, so they get a longer length bound than plain phone numbers.
func ValidateRecipient(recipient string) error {
	if recipient == "" {
		return errors.New(errors.ErrCodeInvalidInput, "recipient cannot be empty")
	}

	cleaned := strings.TrimSpace(recipient)
	cleaned = strings.TrimPrefix(cleaned, "+")
	if at := strings.Index(cleaned, "@"); at >= 0 {
		cleaned = cleaned[:at]
	}
	cleaned = strings.ReplaceAll(cleaned, " ", "")

	if len(cleaned) < constants.MinPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("recipient must be at least %d digits", constants.MinPhoneNumberLength))
	}
	maxLength := constants.MaxPhoneNumberLength
	if strings.Contains(cleaned, "-") {
		maxLength = constants.MaxGroupIDLength
	}
	if len(cleaned) > maxLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("recipient too long (max %d digits)", maxLength))
	}

	for _, char := range cleaned {
		if !unicode.IsDigit(char) && char != '-' {
			return errors.New(errors.ErrCodeInvalidInput, "recipient must contain only digits")
		}
	}

	return nil
}

// ValidateMessageBody checks outbound message text length bounds.
func ValidateMessageBody(text string) error {
	if text == "" {
		return errors.New(errors.ErrCodeInvalidInput, "message text cannot be empty")
	}
	if len(text) > constants.MaxMessageLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("message text too long (max %d bytes)", constants.MaxMessageLength))
	}
	return nil
}
