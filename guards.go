package account

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// passwordCarrier is implemented by payloads that carry the caller's current
// password for confirmation gated mutations.
type passwordCarrier interface {
	ConfirmationPassword() (field, value string)
}

// RequireAuthenticated is the outermost guard. Every guarded mutation starts
// here.
func RequireAuthenticated(user *User) error {
	if user == nil {
		return ErrUnauthenticated
	}
	return nil
}

// RequireVerified implies RequireAuthenticated: an anonymous caller fails
// with UNAUTHENTICATED before verification is ever considered.
func RequireVerified(user *User) error {
	if err := RequireAuthenticated(user); err != nil {
		return err
	}
	if !user.EnsureStatus().Verified {
		return ErrNotVerified
	}
	return nil
}

// RequireSecondaryEmail implies RequireVerified.
func RequireSecondaryEmail(user *User) error {
	if err := RequireVerified(user); err != nil {
		return err
	}
	if user.EnsureStatus().SecondaryEmail == "" {
		return ErrSecondaryEmailRequired
	}
	return nil
}

// RequirePasswordConfirmation checks the caller's current password against
// the one carried by the payload. A mismatch is a field scoped validation
// failure on the carrying field, not a login failure.
//
// Applying this guard to a payload without a password field is a programming
// error, so it panics instead of returning an error the caller would route
// to a client.
func RequirePasswordConfirmation(user *User, payload any) error {
	if err := RequireAuthenticated(user); err != nil {
		return err
	}

	carrier, ok := payload.(passwordCarrier)
	if !ok {
		panic(fmt.Sprintf("account: payload %T does not carry a password field", payload))
	}

	field, value := carrier.ConfirmationPassword()

	if err := ComparePasswordAndHash(value, user.PasswordHash); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeInvalidCredentials {
			return sentinelWithMetadata(ErrInvalidPassword, map[string]any{
				"field": field,
			})
		}
		return err
	}

	return nil
}
