// Package account implements pluggable account flows: registration, email
// verification, login, password reset/set/change, archive/delete, and
// secondary email management.
//
// Every account-state transition that happens out of session (activation,
// password reset, password set, secondary email activation) is authorized by
// a signed, purpose-scoped action token. A per-user status record tracks the
// verified flag, the archived flag, and the secondary email slot; mutating
// operations consult and update it inside a single transaction.
//
// The package is host agnostic: persistence goes through a RepositoryManager,
// email delivery through a Mailer, and the HTTP controller is optional.
package account
