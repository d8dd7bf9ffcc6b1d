package account

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// RegisterPayload is the registration form.
type RegisterPayload struct {
	Username  string `form:"username" json:"username"`
	Email     string `form:"email" json:"email"`
	FirstName string `form:"first_name" json:"first_name"`
	LastName  string `form:"last_name" json:"last_name"`
	Password1 string `form:"password1" json:"password1"`
	Password2 string `form:"password2" json:"password2"`
}

// Validate will run validation rules
func (r RegisterPayload) Validate(settings Settings) error {
	passwordRules := []validation.Rule{
		validation.Required,
		validation.Length(settings.MinPasswordLength, 100),
	}
	if settings.AllowPasswordlessRegistration {
		passwordRules = []validation.Rule{
			validation.Length(settings.MinPasswordLength, 100),
		}
	}

	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Username, validation.Length(1, 150)),
		validation.Field(&r.FirstName, validation.Length(0, 200)),
		validation.Field(&r.LastName, validation.Length(0, 200)),
		validation.Field(&r.Password1, passwordRules...),
		validation.Field(
			&r.Password2,
			validation.By(ValidateStringEquals(r.Password1)),
		),
	)
}

// EmailPayload carries a single address. Used by password reset requests,
// activation resend, and secondary email requests.
type EmailPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r EmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// SecondaryEmailPayload pairs the candidate address with the caller's
// current password.
type SecondaryEmailPayload struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// ConfirmationPassword exposes the password for the confirmation guard.
func (r SecondaryEmailPayload) ConfirmationPassword() (string, string) {
	return "password", r.Password
}

// Validate will run validation rules
func (r SecondaryEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// TokenPayload carries a signed action token.
type TokenPayload struct {
	Token string `form:"token" json:"token"`
}

// Validate will run validation rules
func (r TokenPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

// SetPasswordPayload finalizes a password reset or a password set flow.
type SetPasswordPayload struct {
	Token        string `form:"token" json:"token"`
	NewPassword1 string `form:"new_password1" json:"new_password1"`
	NewPassword2 string `form:"new_password2" json:"new_password2"`
}

// Validate will run validation rules
func (r SetPasswordPayload) Validate(settings Settings) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(
			&r.NewPassword1,
			validation.Required,
			validation.Length(settings.MinPasswordLength, 100),
		),
		validation.Field(
			&r.NewPassword2,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword1)),
		),
	)
}

// ChangePasswordPayload swaps a known password for a new one.
type ChangePasswordPayload struct {
	OldPassword  string `form:"old_password" json:"old_password"`
	NewPassword1 string `form:"new_password1" json:"new_password1"`
	NewPassword2 string `form:"new_password2" json:"new_password2"`
}

// ConfirmationPassword exposes the old password for the confirmation guard.
func (r ChangePasswordPayload) ConfirmationPassword() (string, string) {
	return "old_password", r.OldPassword
}

// Validate will run validation rules
func (r ChangePasswordPayload) Validate(settings Settings) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required),
		validation.Field(
			&r.NewPassword1,
			validation.Required,
			validation.Length(settings.MinPasswordLength, 100),
		),
		validation.Field(
			&r.NewPassword2,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword1)),
		),
	)
}

// PasswordOnlyPayload guards archive, delete, swap, and remove operations.
type PasswordOnlyPayload struct {
	Password string `form:"password" json:"password"`
}

// ConfirmationPassword exposes the password for the confirmation guard.
func (r PasswordOnlyPayload) ConfirmationPassword() (string, string) {
	return "password", r.Password
}

// Validate will run validation rules
func (r PasswordOnlyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required),
	)
}

// UpdateAccountPayload carries profile fields. Which keys are honored is
// decided by Settings.UpdateAccountFields, not by the payload.
type UpdateAccountPayload struct {
	Fields map[string]string `form:"fields" json:"fields"`
}

// Validate will run validation rules
func (r UpdateAccountPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Fields, validation.Required),
	)
}

// LoginPayload authenticates with exactly one identity field plus password.
type LoginPayload struct {
	Email    string `form:"email" json:"email"`
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required),
	)
}

// IdentityFields returns the populated identity fields as name value pairs.
func (r LoginPayload) IdentityFields() map[string]string {
	fields := map[string]string{}
	if r.Email != "" {
		fields["email"] = r.Email
	}
	if r.Username != "" {
		fields["username"] = r.Username
	}
	return fields
}

// RefreshPayload rotates a refresh token.
type RefreshPayload struct {
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

// Validate will run validation rules
func (r RefreshPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a field
// keyed map suitable for a JSON response.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["payload"] = err.Error()
	return out
}
