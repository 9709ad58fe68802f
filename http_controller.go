package accounts

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// RegisterAuthRoutes mounts the public account lifecycle routes.
func RegisterAuthRoutes(app fiber.Router, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Get(controller.Routes.Login, controller.LoginShow).Name("sign-in.get")
	app.Post(controller.Routes.Login, controller.LoginPost).Name("sign-in.post")

	app.Post(controller.Routes.Logout, controller.LogOut).Name("sign-out.post")
	app.Get(controller.Routes.Logout, controller.LogOut).Name("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).Name("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).Name("register.post")

	app.Get(controller.Routes.Confirm, controller.ConfirmGet).Name("confirm.get")

	return controller
}

type AuthControllerRoutes struct {
	Login    string
	Logout   string
	Register string
	Confirm  string
}

type AuthControllerViews struct {
	Login    string
	Register string
	Confirm  string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	Auther       HTTPAuthenticator
	Registrar    *RegisterAccountHandler
	Confirmer    *ConfirmAccountHandler
	ErrorHandler func(*fiber.Ctx, error) error
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AuthControllerRoutes{
			Login:    "/login",
			Logout:   "/logout",
			Register: "/register",
			Confirm:  "/confirm",
		},
		Views: &AuthControllerViews{
			Login:    "login",
			Register: "register",
			Confirm:  "confirm",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	if c.Registrar == nil {
		c.Registrar = NewRegisterAccountHandler(c.Repo,
			WithRegistrationLogger(c.Logger),
			WithConfirmationBaseURL(c.Routes.Confirm),
		)
	}

	if c.Confirmer == nil {
		c.Confirmer = NewConfirmAccountHandler(c.Repo, WithConfirmationLogger(c.Logger))
	}

	return c
}

func WithAuthControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithAuthControllerAuther(auther HTTPAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithAuthControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithAuthControllerRegistrar(h *RegisterAccountHandler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Registrar = h
		return c
	}
}

func WithAuthControllerConfirmer(h *ConfirmAccountHandler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Confirmer = h
		return c
	}
}

func (a *AuthController) LoginShow(c *fiber.Ctx) error {
	return c.Render(a.Views.Login, FlashViewContext(c, fiber.Map{
		"errors": nil,
		"record": nil,
	}))
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession reports whether the remember-me box was checked
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("login parse payload: %s", err)
		return a.ErrorHandler(c, err)
	}

	if err := payload.Validate(); err != nil {
		return c.Render(a.Views.Login, fiber.Map{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		a.Logger.Debug("login payload: %s", print.MaybePrettyJSON(payload))
	}

	if err := a.Auther.Login(c, payload); err != nil {
		return c.Render(a.Views.Login, fiber.Map{
			"errors": map[string]string{
				"authentication": loginErrorMessage(err),
			},
			"record": payload,
		})
	}

	redirect := a.Auther.GetRedirect(c, "/")

	return c.Redirect(redirect, fiber.StatusSeeOther)
}

// loginErrorMessage keeps unknown-email and wrong-password responses
// identical. Only a blocked account gets its own message.
func loginErrorMessage(err error) string {
	if goerrors.Is(err, ErrAccountBlocked) {
		return "This account is blocked"
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == "ACCOUNT_BLOCKED" {
		return "This account is blocked"
	}

	return "Invalid email or password"
}

func (a *AuthController) LogOut(c *fiber.Ctx) error {
	a.Auther.Logout(c)
	return c.Redirect("/login", fiber.StatusSeeOther)
}

func (a *AuthController) RegistrationShow(c *fiber.Ctx) error {
	return c.Render(a.Views.Register, FlashViewContext(c, fiber.Map{
		"errors": map[string]string{},
		"record": RegisterAccountMessage{},
	}))
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	Name            string `form:"name" json:"name"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&r.Password, validation.Required),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegistrationCreate(c *fiber.Ctx) error {
	payload := new(RegistrationCreatePayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("register account parse payload: %s", err)
		return c.Status(fiber.StatusBadRequest).Render(a.Views.Register, fiber.Map{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register account validate payload: %s", err)
		return c.Render(a.Views.Register, fiber.Map{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	req := RegisterAccountMessage{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
	}

	if err := a.Registrar.Execute(c.Context(), req); err != nil {
		a.Logger.Error("register account error: %s", err)

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			switch richErr.Category {
			case goerrors.CategoryConflict:
				return c.Render(a.Views.Register, fiber.Map{
					"record":     payload,
					"validation": map[string]string{"email": richErr.Message},
				})
			case goerrors.CategoryValidation:
				return c.Render(a.Views.Register, fiber.Map{
					"record":     payload,
					"validation": map[string]string{"password": richErr.Message},
				})
			}
		}

		return a.ErrorHandler(c, err)
	}

	SetFlash(c, FlashSuccess, "Account created. Check your email for the confirmation link.")
	return c.Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func (a *AuthController) ConfirmGet(c *fiber.Ctx) error {
	token := c.Query("token")

	var confirmed *Account

	req := ConfirmAccountMessage{
		Token: token,
		OnConfirmed: func(account *Account) {
			confirmed = account
		},
	}

	if err := a.Confirmer.Execute(c.Context(), req); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryNotFound {
			return c.Render(a.Views.Confirm, fiber.Map{
				"confirmed": false,
				"errors": map[string]string{
					"token": "This confirmation link is invalid or was already used.",
				},
			})
		}
		return a.ErrorHandler(c, err)
	}

	if a.Debug {
		a.Logger.Debug("confirmed account: %s", print.MaybePrettyJSON(confirmed))
	}

	SetFlash(c, FlashSuccess, "Email confirmed. You can sign in now.")
	return c.Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return fmt.Errorf("values must match")
		}
		return nil
	}
}

func defaultErrHandler(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).Render("errors/500", fiber.Map{
		"message": err.Error(),
	})
}
