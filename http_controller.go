package account

import (
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController exposes every account mutation as a JSON endpoint. Both
// calling conventions are accepted on each route: a flat body and a relay
// style {"input": {...}} envelope.
type HTTPController struct {
	Debug  bool
	Logger Logger
	Module *Module
}

// HTTPControllerOption configures the controller.
type HTTPControllerOption func(*HTTPController) *HTTPController

// WithControllerModule sets the account module backing the routes.
func WithControllerModule(m *Module) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Module = m
		return c
	}
}

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerDebug toggles request payload dumps.
func WithControllerDebug(debug bool) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Debug = debug
		return c
	}
}

// NewHTTPController builds the controller.
func NewHTTPController(opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		Logger: defLogger{},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Module == nil {
		panic("Missing Module in account controller...")
	}

	return c
}

// RegisterAccountRoutes mounts every operation the schema exposes.
func RegisterAccountRoutes(app RouteRegistrar, opts ...HTTPControllerOption) *HTTPController {
	c := NewHTTPController(opts...)

	handlers := map[string]router.HandlerFunc{
		"register":                     c.RegisterPost,
		"verifyAccount":                c.VerifyAccountPost,
		"resendActivationEmail":        c.ResendActivationPost,
		"tokenAuth":                    c.TokenAuthPost,
		"verifyToken":                  c.VerifyTokenPost,
		"refreshToken":                 c.RefreshTokenPost,
		"revokeToken":                  c.RevokeTokenPost,
		"sendPasswordResetEmail":       c.SendPasswordResetPost,
		"passwordReset":                c.PasswordResetPost,
		"passwordSet":                  c.PasswordSetPost,
		"passwordChange":               c.PasswordChangePost,
		"updateAccount":                c.UpdateAccountPost,
		"archiveAccount":               c.ArchiveAccountPost,
		"deleteAccount":                c.DeleteAccountPost,
		"sendSecondaryEmailActivation": c.SendSecondaryEmailPost,
		"verifySecondaryEmail":         c.VerifySecondaryEmailPost,
		"swapEmails":                   c.SwapEmailsPost,
		"removeSecondaryEmail":         c.RemoveSecondaryEmailPost,
	}

	for _, op := range c.Module.Schema().Operations() {
		handler, ok := handlers[op.Name]
		if !ok {
			panic(fmt.Sprintf("no handler registered for operation %q", op.Name))
		}

		if op.Authenticated {
			app.Post(op.Path, handler, c.Protected())
			continue
		}
		app.Post(op.Path, handler)
	}

	return c
}

// Protected extracts the bearer token, resolves the user, and stores it in
// the request context. Missing or invalid credentials short circuit with
// the uniform unauthenticated payload.
func (a *HTTPController) Protected() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			header := ctx.GetString(router.HeaderAuthorization, "")
			scheme := "Bearer"

			if len(header) <= len(scheme)+1 || !strings.EqualFold(header[:len(scheme)], scheme) {
				return a.handleError(ctx, ErrUnauthenticated)
			}

			token := strings.TrimSpace(header[len(scheme):])

			user, err := a.Module.Authenticate(ctx.Context(), token)
			if err != nil {
				return a.handleError(ctx, err)
			}

			ctx.Locals("account_user", user)
			ctx.SetContext(WithContext(ctx.Context(), user))

			return hf(ctx)
		}
	}
}

func (a *HTTPController) RegisterPost(ctx router.Context) error {
	msg := RegisterMessage{}
	if err := bindPayload(ctx, &msg.RegisterPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	a.debugPayload("register", msg.RegisterPayload)

	resp, err := a.Module.Register.Execute(ctx.Context(), msg)
	if err != nil {
		// The account may exist with a failed email delivery; surface
		// both the partial result and the code.
		if resp != nil && HasTextCode(err, TextCodeActivationEmailFailed) {
			return ctx.JSON(router.StatusOK, map[string]any{
				"success": false,
				"code":    lowerCode(TextCodeActivationEmailFailed),
				"user":    resp.User,
			})
		}
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) VerifyAccountPost(ctx router.Context) error {
	msg := VerifyAccountMessage{}
	if err := bindPayload(ctx, &msg.TokenPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.VerifyAccount.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) ResendActivationPost(ctx router.Context) error {
	msg := ResendActivationMessage{}
	if err := bindPayload(ctx, &msg.EmailPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.ResendActivation.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) TokenAuthPost(ctx router.Context) error {
	msg := LoginMessage{}
	if err := bindPayload(ctx, &msg.LoginPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.Login.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) VerifyTokenPost(ctx router.Context) error {
	msg := VerifyTokenMessage{}
	if err := bindPayload(ctx, &msg.TokenPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.VerifyToken.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) RefreshTokenPost(ctx router.Context) error {
	msg := RefreshTokenMessage{}
	if err := bindPayload(ctx, &msg.RefreshPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.RefreshToken.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) RevokeTokenPost(ctx router.Context) error {
	msg := RevokeTokenMessage{}
	if err := bindPayload(ctx, &msg.RefreshPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.RevokeToken.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) SendPasswordResetPost(ctx router.Context) error {
	msg := SendPasswordResetMessage{}
	if err := bindPayload(ctx, &msg.EmailPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.SendPasswordReset.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) PasswordResetPost(ctx router.Context) error {
	msg := PasswordResetMessage{}
	if err := bindPayload(ctx, &msg.SetPasswordPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.PasswordReset.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) PasswordSetPost(ctx router.Context) error {
	msg := PasswordSetMessage{}
	if err := bindPayload(ctx, &msg.SetPasswordPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.PasswordSet.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) PasswordChangePost(ctx router.Context) error {
	msg := PasswordChangeMessage{User: a.currentUser(ctx)}
	if err := bindPayload(ctx, &msg.ChangePasswordPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.PasswordChange.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) UpdateAccountPost(ctx router.Context) error {
	msg := UpdateAccountMessage{User: a.currentUser(ctx)}
	if err := bindPayload(ctx, &msg.UpdateAccountPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.UpdateAccount.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) ArchiveAccountPost(ctx router.Context) error {
	msg := ArchiveAccountMessage{User: a.currentUser(ctx)}
	if err := bindPayload(ctx, &msg.PasswordOnlyPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.ArchiveAccount.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) DeleteAccountPost(ctx router.Context) error {
	msg := DeleteAccountMessage{User: a.currentUser(ctx)}
	if err := bindPayload(ctx, &msg.PasswordOnlyPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.DeleteAccount.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) SendSecondaryEmailPost(ctx router.Context) error {
	msg := SendSecondaryEmailActivationMessage{User: a.currentUser(ctx)}
	if err := bindPayload(ctx, &msg.SecondaryEmailPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.SendSecondaryEmail.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) VerifySecondaryEmailPost(ctx router.Context) error {
	msg := VerifySecondaryEmailMessage{}
	if err := bindPayload(ctx, &msg.TokenPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.VerifySecondaryEmail.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) SwapEmailsPost(ctx router.Context) error {
	msg := SwapEmailsMessage{User: a.currentUser(ctx)}
	if err := bindPayload(ctx, &msg.PasswordOnlyPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.SwapEmails.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) RemoveSecondaryEmailPost(ctx router.Context) error {
	msg := RemoveSecondaryEmailMessage{User: a.currentUser(ctx)}
	if err := bindPayload(ctx, &msg.PasswordOnlyPayload); err != nil {
		return a.handleBindError(ctx, err)
	}

	resp, err := a.Module.RemoveSecondaryEmail.Execute(ctx.Context(), msg)
	if err != nil {
		return a.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (a *HTTPController) currentUser(ctx router.Context) *User {
	if user, ok := FromContext(ctx.Context()); ok {
		return user
	}
	if user, ok := ctx.Locals("account_user").(*User); ok {
		return user
	}
	return nil
}

func (a *HTTPController) debugPayload(name string, payload any) {
	if !a.Debug {
		return
	}
	fmt.Printf("======= ACCOUNT %s =======\n", strings.ToUpper(name))
	fmt.Println(print.MaybePrettyJSON(payload))
	fmt.Println("==========================")
}

func (a *HTTPController) handleBindError(ctx router.Context, err error) error {
	a.Logger.Error("payload bind failed: %v", err)
	return ctx.JSON(fiber.StatusBadRequest, map[string]any{
		"success": false,
		"code":    "invalid_payload",
		"errors": map[string]any{
			"nonFieldErrors": []string{"failed to parse request body"},
		},
	})
}

func (a *HTTPController) handleError(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	a.Logger.Info(
		"account mutation error",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	status := richErr.Code
	if status == 0 {
		status = fiber.StatusInternalServerError
	}

	errors := map[string]any{}
	if fields, ok := richErr.Metadata["fields"].(map[string]string); ok {
		for field, msg := range fields {
			errors[field] = []string{msg}
		}
	} else if field, ok := richErr.Metadata["field"].(string); ok {
		errors[field] = []string{richErr.Message}
	}
	if len(errors) == 0 {
		errors["nonFieldErrors"] = []string{richErr.Message}
	}

	return ctx.JSON(status, map[string]any{
		"success": false,
		"code":    lowerCode(richErr.TextCode),
		"errors":  errors,
	})
}

// bindPayload accepts both calling conventions: a flat body and a relay
// style envelope where the arguments live under "input".
func bindPayload[T any](ctx router.Context, payload *T) error {
	var envelope struct {
		Input *T `json:"input"`
	}
	if err := ctx.Bind(&envelope); err == nil && envelope.Input != nil {
		*payload = *envelope.Input
		return nil
	}
	return ctx.Bind(payload)
}

func lowerCode(textCode string) string {
	return strings.ToLower(textCode)
}
