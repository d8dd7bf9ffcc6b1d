package account

import (
	"strings"
)

// Operation describes one mutation of the account surface: its wire name,
// its relay style input object name, and the guards the controller applies
// before the handler runs.
type Operation struct {
	Name          string
	Path          string
	InputName     string
	Authenticated bool
}

// Schema is the operation catalog, assembled once at startup so clients can
// introspect which mutations the configuration actually exposes.
type Schema struct {
	operations []Operation
}

// NewSchema builds the catalog for the given settings. Flows disabled by
// configuration are left out entirely instead of failing at call time.
func NewSchema(settings Settings) *Schema {
	ops := []Operation{
		{Name: "register", Path: "/register"},
		{Name: "verifyAccount", Path: "/verify-account"},
		{Name: "resendActivationEmail", Path: "/resend-activation-email"},
		{Name: "tokenAuth", Path: "/token-auth"},
		{Name: "verifyToken", Path: "/verify-token"},
		{Name: "refreshToken", Path: "/refresh-token"},
		{Name: "revokeToken", Path: "/revoke-token"},
		{Name: "sendPasswordResetEmail", Path: "/send-password-reset-email"},
		{Name: "passwordReset", Path: "/password-reset"},
		{Name: "passwordChange", Path: "/password-change", Authenticated: true},
		{Name: "updateAccount", Path: "/update-account", Authenticated: true},
		{Name: "archiveAccount", Path: "/archive-account", Authenticated: true},
		{Name: "deleteAccount", Path: "/delete-account", Authenticated: true},
		{Name: "sendSecondaryEmailActivation", Path: "/send-secondary-email-activation", Authenticated: true},
		{Name: "verifySecondaryEmail", Path: "/verify-secondary-email"},
		{Name: "swapEmails", Path: "/swap-emails", Authenticated: true},
		{Name: "removeSecondaryEmail", Path: "/remove-secondary-email", Authenticated: true},
	}

	if settings.AllowPasswordlessRegistration {
		ops = append(ops, Operation{Name: "passwordSet", Path: "/password-set"})
	}

	for i := range ops {
		ops[i].InputName = relayInputName(ops[i].Name)
	}

	return &Schema{operations: ops}
}

// Operations returns the catalog in registration order.
func (s *Schema) Operations() []Operation {
	out := make([]Operation, len(s.operations))
	copy(out, s.operations)
	return out
}

// Lookup finds an operation by wire name.
func (s *Schema) Lookup(name string) (Operation, bool) {
	for _, op := range s.operations {
		if op.Name == name {
			return op, true
		}
	}
	return Operation{}, false
}

func relayInputName(name string) string {
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:] + "Input"
}
