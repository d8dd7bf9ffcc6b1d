package account

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// StatusService owns the per user status record: the verified flag, the
// archived flag, and the secondary email slot. Every operation that writes
// an email value re-checks the global uniqueness invariant inside its
// transaction.
type StatusService struct {
	repo     RepositoryManager
	tokens   *ActionTokenService
	settings Settings
	activity ActivitySink
	logger   Logger
}

// NewStatusService wires the status store.
func NewStatusService(repo RepositoryManager, tokens *ActionTokenService, settings Settings) *StatusService {
	return &StatusService{
		repo:     repo,
		tokens:   tokens,
		settings: settings,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink receiving verification events.
func (s *StatusService) WithActivitySink(sink ActivitySink) *StatusService {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithLogger overrides the service logger.
func (s *StatusService) WithLogger(logger Logger) *StatusService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// CleanEmail fails with EMAIL_IN_USE when the candidate address exists as
// any primary or secondary email. Call it inside the transaction performing
// the guarded write; the unique constraints remain the final arbiter for
// concurrent registrations.
func (s *StatusService) CleanEmail(ctx context.Context, tx bun.IDB, email string) error {
	taken, err := s.repo.Users().EmailTakenTx(ctx, tx, email)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email uniqueness")
	}
	if taken {
		return ErrEmailInUse
	}
	return nil
}

// Verify redeems an activation token and flips the verified flag. Redeeming
// on behalf of an already verified account is a conflict.
func (s *StatusService) Verify(ctx context.Context, token string) (*User, error) {
	payload, err := s.tokens.Redeem(token, TokenActionActivation, s.settings.TokenMaxAge(TokenActionActivation))
	if err != nil {
		return nil, err
	}

	var user *User
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = s.repo.Users().GetByUsernameTx(ctx, tx, payload.Username)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve user for verification")
		}

		if user.EnsureStatus().Verified {
			return ErrAlreadyVerified
		}

		if err := s.repo.Statuses().SetVerifiedTx(ctx, tx, user.ID, true); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist verified flag")
		}

		user.Status.Verified = true
		return nil
	})

	if err != nil {
		return nil, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventUserVerified,
		Actor:     userActor(user),
		UserID:    user.ID.String(),
	})

	return user, nil
}

// VerifySecondaryEmail redeems a secondary email activation token and
// commits the candidate address. The address was free at issuance time but
// another account may have claimed it since; the in-transaction re-check is
// the actual guard for that window.
func (s *StatusService) VerifySecondaryEmail(ctx context.Context, token string) (*User, error) {
	payload, err := s.tokens.Redeem(token, TokenActionSecondaryEmail, s.settings.TokenMaxAge(TokenActionSecondaryEmail))
	if err != nil {
		return nil, err
	}

	email := payload.Extra["secondary_email"]
	if email == "" {
		return nil, ErrInvalidToken
	}

	var user *User
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = s.repo.Users().GetByUsernameTx(ctx, tx, payload.Username)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve user for secondary email activation")
		}

		if err := s.CleanEmail(ctx, tx, email); err != nil {
			return err
		}

		if err := s.repo.Statuses().SetSecondaryEmailTx(ctx, tx, user.ID, email); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist secondary email")
		}

		user.EnsureStatus().SecondaryEmail = email
		return nil
	})

	if err != nil {
		return nil, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventSecondaryEmail,
		Actor:     userActor(user),
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"secondary_email": email},
	})

	return user, nil
}

// Archive marks the account archived. Reversed automatically the next time
// the owner authenticates.
func (s *StatusService) Archive(ctx context.Context, user *User) error {
	return s.setArchived(ctx, user, true, ActivityEventUserArchived)
}

// Unarchive reactivates an archived account. Only the login flow calls it;
// it is not part of the public mutation surface.
func (s *StatusService) Unarchive(ctx context.Context, user *User) error {
	return s.setArchived(ctx, user, false, ActivityEventUserUnarchived)
}

func (s *StatusService) setArchived(ctx context.Context, user *User, archived bool, event ActivityEventType) error {
	if user == nil {
		return goerrors.New("user is required", goerrors.CategoryBadInput)
	}

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return s.repo.Statuses().SetArchivedTx(ctx, tx, user.ID, archived)
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist archived flag")
	}

	user.EnsureStatus().Archived = archived

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: event,
		Actor:     userActor(user),
		UserID:    user.ID.String(),
	})

	return nil
}

// SwapEmails atomically exchanges the primary email and the secondary slot.
func (s *StatusService) SwapEmails(ctx context.Context, user *User) error {
	if user == nil {
		return goerrors.New("user is required", goerrors.CategoryBadInput)
	}

	secondary := user.EnsureStatus().SecondaryEmail
	if secondary == "" {
		return ErrSecondaryEmailRequired
	}

	primary := user.Email

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// The swap must not transit through a state where the primary
		// unique constraint sees both rows holding the same address, so
		// clear the secondary slot first.
		if err := s.repo.Statuses().SetSecondaryEmailTx(ctx, tx, user.ID, ""); err != nil {
			return err
		}
		if err := s.repo.Users().SetPrimaryEmailTx(ctx, tx, user.ID, secondary); err != nil {
			return err
		}
		return s.repo.Statuses().SetSecondaryEmailTx(ctx, tx, user.ID, primary)
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to swap emails")
	}

	user.Email = secondary
	user.Status.SecondaryEmail = primary

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventEmailsSwapped,
		Actor:     userActor(user),
		UserID:    user.ID.String(),
	})

	return nil
}

// RemoveSecondaryEmail clears the secondary slot.
func (s *StatusService) RemoveSecondaryEmail(ctx context.Context, user *User) error {
	if user == nil {
		return goerrors.New("user is required", goerrors.CategoryBadInput)
	}

	if user.EnsureStatus().SecondaryEmail == "" {
		return ErrSecondaryEmailRequired
	}

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return s.repo.Statuses().SetSecondaryEmailTx(ctx, tx, user.ID, "")
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to remove secondary email")
	}

	user.Status.SecondaryEmail = ""
	return nil
}

// MarkVerifiedTx flips the verified flag inside a caller owned transaction.
// Used by the password reset and password set flows to auto verify.
func (s *StatusService) MarkVerifiedTx(ctx context.Context, tx bun.IDB, user *User) (bool, error) {
	if user.EnsureStatus().Verified {
		return false, nil
	}

	if err := s.repo.Statuses().SetVerifiedTx(ctx, tx, user.ID, true); err != nil {
		return false, err
	}

	user.Status.Verified = true
	return true, nil
}

// EmitVerified publishes the user verified event. Split from MarkVerifiedTx
// so the event fires only after the surrounding transaction commits.
func (s *StatusService) EmitVerified(ctx context.Context, user *User) {
	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventUserVerified,
		Actor:     userActor(user),
		UserID:    user.ID.String(),
	})
}
