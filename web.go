package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/rs/zerolog/log"

	"facecrop/internal/chat"
	"facecrop/internal/crop"
	"facecrop/internal/facematch"
)

//go:embed static
var staticFS embed.FS
var isDebug = os.Getenv("DEBUG") == "1"

// blobPrefix is the route cropped previews are served from.
const blobPrefix = "/api/blobs/"

var errNoCrop = errors.New("crop the photo before submitting")

// Backend is the face-recognition service the forms submit to.
type Backend interface {
	Upload(ctx context.Context, e facematch.Endpoint, fields map[string]string, photo facematch.Photo) (facematch.Response, error)
	SearchFace(ctx context.Context, faceID string) (facematch.Response, error)
	RecordsByUser(ctx context.Context, userID string) (facematch.Response, error)
}

// AdminService manages the backend's administrators. The backend checks the
// acting user's role again on every call.
type AdminService interface {
	AdminStatus(ctx context.Context, userID string) (facematch.AdminStatus, error)
	ListAdmins(ctx context.Context, requesterID string) ([]facematch.Admin, error)
	CreateAdmin(ctx context.Context, creatorID string, a facematch.Admin) (facematch.Admin, error)
	UpdateAdmin(ctx context.Context, creatorID, adminID string, u facematch.AdminUpdate) (facematch.Admin, error)
	DeleteAdmin(ctx context.Context, creatorID, adminID string) error
}

type Config struct {
	Addr             string
	Forms            *Forms
	Blobs            *crop.BlobStore
	Backend          Backend
	Admins           AdminService
	Bot              *chat.Bot
	Finder           crop.Finder
	Verifier         *IdentityVerifier
	MaxUploadBytes   int64
	OnBeforeShutdown func()
	OnReady          func(addr string)
}

type WebApp struct {
	config       Config
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

func NewWebApp(config Config) *WebApp {
	if config.Bot == nil {
		config.Bot = chat.NewBot(nil)
	}
	if config.Finder == nil {
		config.Finder = crop.SmartFinder{Aspect: crop.Square}
	}
	return &WebApp{
		config:     config,
		shutdownCh: make(chan struct{}),
	}
}

func (a *WebApp) Shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})
}

// statusOf maps an error returned by a handler to its HTTP status and the
// message shown to the user.
func statusOf(err error) (int, string) {
	var fiberErr *fiber.Error
	var apiErr *facematch.APIError
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code, fiberErr.Message
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, apiErr.Message
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, errUnauthorized.Error()
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, crop.ErrNoFocus):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, errUploadTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, crop.ErrDecode),
		errors.Is(err, crop.ErrOutOfBounds),
		errors.Is(err, crop.ErrEmptyRect),
		errors.Is(err, errUploadType),
		errors.Is(err, facematch.ErrInvalidSubmission):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, crop.ErrSessionOpen),
		errors.Is(err, crop.ErrNotOpen),
		errors.Is(err, errNoCrop):
		return http.StatusConflict, err.Error()
	case errors.Is(err, crop.ErrRasterize):
		return http.StatusInternalServerError, crop.ErrRasterize.Error()
	}
	return http.StatusInternalServerError, "Internal Server Error"
}

func (a *WebApp) bodyLimit() int {
	// data URLs are base64, a third larger than the photo
	limit := int(a.config.MaxUploadBytes*4/3) + 64<<10
	if limit < fiber.DefaultBodyLimit {
		return fiber.DefaultBodyLimit
	}
	return limit
}

func (a *WebApp) newApp(ctx context.Context) *fiber.App {
	webapp := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		BodyLimit:             a.bodyLimit(),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code, msg := statusOf(err)
			if code == http.StatusNotFound && c.Path() == "/favicon.ico" {
				return nil
			}
			ev := log.Ctx(c.UserContext()).Warn()
			if code >= http.StatusInternalServerError {
				ev = log.Ctx(c.UserContext()).Error()
			}
			ev.Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Msg("Request failed")
			return c.Status(code).JSON(fiber.Map{"error": msg})
		},
	})

	logger := log.Ctx(ctx)
	webapp.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(logger.WithContext(c.UserContext()))
		return c.Next()
	})

	webapp.Hooks().OnListen(func(listen fiber.ListenData) error {
		if fn := a.config.OnReady; fn != nil {
			fn(fmt.Sprintf("http://%s:%s", listen.Host, listen.Port))
		}
		return nil
	})

	api := webapp.Group("/api")
	api.Get("/forms", a.listForms)

	forms := api.Group("/forms/:form")
	forms.Post("/crop", a.beginCrop)
	forms.Post("/crop/drag", a.dragCrop)
	forms.Post("/crop/zoom", a.zoomCrop)
	forms.Post("/crop/focus", a.focusCrop)
	forms.Post("/crop/confirm", a.confirmCrop)
	forms.Post("/crop/cancel", a.cancelCrop)
	forms.Post("/submit", a.submit)

	api.Get("/blobs/:id", a.blob)
	api.Get("/records", a.records)
	api.Get("/faces/:id", a.face)

	if a.config.Admins != nil {
		admin := api.Group("/admin")
		admin.Get("/status", a.adminStatus)
		admin.Get("/admins", a.listAdmins)
		admin.Post("/admins", a.createAdmin)
		admin.Patch("/admins/:id", a.updateAdmin)
		admin.Delete("/admins/:id", a.deleteAdmin)
	}

	api.Post("/chat", a.chat)
	api.Get("/chat/suggestions", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"greeting":    chat.Greeting(time.Now()),
			"suggestions": chat.Suggestions(),
		})
	})

	api.Post("/shutdown", func(c *fiber.Ctx) error {
		a.Shutdown()
		return nil
	})

	if isDebug {
		log.Debug().Msg("Debug mode enabled, serving static files from './static' directory")
		webapp.Static("/", "static")
	} else {
		log.Debug().Msg("Serving static files from embedded filesystem")
		webapp.Use("/", filesystem.New(filesystem.Config{
			Root:       http.FS(staticFS),
			PathPrefix: "/static",
		}))
	}

	return webapp
}

func (a *WebApp) Run(ctx context.Context) error {
	webapp := a.newApp(ctx)

	go func() {
		select {
		case <-ctx.Done():
		case <-a.shutdownCh:
		}
		if fn := a.config.OnBeforeShutdown; fn != nil {
			fn()
		}
		if err := webapp.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to shutdown web application")
		}
	}()

	addr := a.config.Addr
	if addr == "" {
		addr = "localhost:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if err := webapp.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func (a *WebApp) form(c *fiber.Ctx) (*Form, error) {
	form, ok := a.config.Forms.Get(c.Params("form"))
	if !ok {
		return nil, fiber.NewError(http.StatusNotFound, fmt.Sprintf("unknown form %q", c.Params("form")))
	}
	return form, nil
}

type formResponse struct {
	Name    string    `json:"name"`
	Title   string    `json:"title"`
	Fields  []string  `json:"fields"`
	Crop    crop.View `json:"crop"`
	Preview string    `json:"preview,omitempty"`
}

func (a *WebApp) listForms(c *fiber.Ctx) error {
	var response []formResponse
	for _, f := range a.config.Forms.All() {
		item := formResponse{
			Name:   f.Name,
			Title:  f.Title,
			Fields: f.Endpoint.Fields,
			Crop:   f.Field.View(),
		}
		if res := f.Field.Current(); res != nil {
			item.Preview = res.URL
		}
		response = append(response, item)
	}
	return c.JSON(response)
}

func (a *WebApp) beginCrop(c *fiber.Ctx) error {
	form, err := a.form(c)
	if err != nil {
		return err
	}
	var request struct {
		Image string `json:"image"`
	}
	if err := c.BodyParser(&request); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if _, err := checkUpload(request.Image, a.config.MaxUploadBytes); err != nil {
		return err
	}
	view, err := form.Field.Begin(c.UserContext(), request.Image)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (a *WebApp) dragCrop(c *fiber.Ctx) error {
	form, err := a.form(c)
	if err != nil {
		return err
	}
	var request struct {
		DX float64 `json:"dx"`
		DY float64 `json:"dy"`
	}
	if err := c.BodyParser(&request); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	view, err := form.Field.Drag(request.DX, request.DY)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (a *WebApp) zoomCrop(c *fiber.Ctx) error {
	form, err := a.form(c)
	if err != nil {
		return err
	}
	var request struct {
		Zoom float64 `json:"zoom"`
	}
	if err := c.BodyParser(&request); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	view, err := form.Field.SetZoom(request.Zoom)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (a *WebApp) focusCrop(c *fiber.Ctx) error {
	form, err := a.form(c)
	if err != nil {
		return err
	}
	view, err := form.Field.Focus(c.UserContext(), a.config.Finder)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (a *WebApp) confirmCrop(c *fiber.Ctx) error {
	form, err := a.form(c)
	if err != nil {
		return err
	}
	res, err := form.Field.Confirm(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"url":    res.URL,
		"name":   res.File.Name,
		"type":   res.File.ContentType,
		"width":  res.File.Width,
		"height": res.File.Height,
	})
}

func (a *WebApp) cancelCrop(c *fiber.Ctx) error {
	form, err := a.form(c)
	if err != nil {
		return err
	}
	form.Field.Cancel()
	return c.SendStatus(http.StatusNoContent)
}

func (a *WebApp) blob(c *fiber.Ctx) error {
	b, ok := a.config.Blobs.Get(c.Params("id"))
	if !ok {
		return fiber.ErrNotFound
	}
	c.Set(fiber.HeaderContentType, b.ContentType)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(b.Data)
}

// identity reads the signed-in user. With a verifier configured it comes from
// the bearer token and is required; otherwise from the headers set by the
// auth proxy, if any.
func (a *WebApp) identity(c *fiber.Ctx) (Identity, error) {
	if a.config.Verifier != nil {
		token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if !ok {
			return Identity{}, errUnauthorized
		}
		return a.config.Verifier.Verify(token)
	}
	return Identity{
		UserID: strings.TrimSpace(c.Get("X-User-Id")),
		Name:   strings.TrimSpace(c.Get("X-User-Name")),
		Email:  strings.TrimSpace(c.Get("X-User-Email")),
		Phone:  strings.TrimSpace(c.Get("X-User-Phone")),
	}, nil
}

func (a *WebApp) submit(c *fiber.Ctx) error {
	form, err := a.form(c)
	if err != nil {
		return err
	}
	id, err := a.identity(c)
	if err != nil {
		return err
	}
	var request struct {
		Fields map[string]string `json:"fields"`
	}
	if err := c.BodyParser(&request); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res := form.Field.Current()
	if res == nil {
		return errNoCrop
	}
	if request.Fields == nil {
		request.Fields = make(map[string]string)
	}
	id.apply(request.Fields)

	resp, err := a.config.Backend.Upload(c.UserContext(), form.Endpoint, request.Fields, facematch.Photo{
		Name: res.File.Name,
		Data: res.File.Data,
	})
	if err != nil {
		return err
	}

	log.Ctx(c.UserContext()).Info().
		Str("form", form.Name).
		Stringer("kind", resp.Kind).
		Int("records", len(resp.Records)).
		Msg("submission accepted")

	// a submitted form starts over with no photo
	form.Field.Clear()
	return c.JSON(resp)
}

// records lists what the signed-in user has submitted.
func (a *WebApp) records(c *fiber.Ctx) error {
	id, err := a.identity(c)
	if err != nil {
		return err
	}
	resp, err := a.config.Backend.RecordsByUser(c.UserContext(), id.UserID)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

func (a *WebApp) face(c *fiber.Ctx) error {
	resp, err := a.config.Backend.SearchFace(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// admin returns the signed-in caller once they are an admin, or a head admin
// when head is set.
func (a *WebApp) admin(c *fiber.Ctx, head bool) (Identity, error) {
	id, err := a.identity(c)
	if err != nil {
		return Identity{}, err
	}
	if id.UserID == "" {
		return Identity{}, errUnauthorized
	}
	status, err := a.config.Admins.AdminStatus(c.UserContext(), id.UserID)
	if err != nil {
		return Identity{}, err
	}
	switch {
	case !status.IsAdmin:
		return Identity{}, fmt.Errorf("%w: admins only", errForbidden)
	case head && !status.Head():
		return Identity{}, fmt.Errorf("%w: head admins only", errForbidden)
	}
	return id, nil
}

func (a *WebApp) adminStatus(c *fiber.Ctx) error {
	id, err := a.identity(c)
	if err != nil {
		return err
	}
	status, err := a.config.Admins.AdminStatus(c.UserContext(), id.UserID)
	if err != nil {
		return err
	}
	return c.JSON(status)
}

func (a *WebApp) listAdmins(c *fiber.Ctx) error {
	id, err := a.admin(c, false)
	if err != nil {
		return err
	}
	admins, err := a.config.Admins.ListAdmins(c.UserContext(), id.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"admins": admins})
}

func (a *WebApp) createAdmin(c *fiber.Ctx) error {
	id, err := a.admin(c, true)
	if err != nil {
		return err
	}
	var request facematch.Admin
	if err := c.BodyParser(&request); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	created, err := a.config.Admins.CreateAdmin(c.UserContext(), id.UserID, request)
	if err != nil {
		return err
	}
	log.Ctx(c.UserContext()).Info().
		Str("admin", created.UserID).
		Str("role", string(created.Role)).
		Str("by", id.UserID).
		Msg("admin created")
	return c.Status(http.StatusCreated).JSON(created)
}

func (a *WebApp) updateAdmin(c *fiber.Ctx) error {
	id, err := a.admin(c, true)
	if err != nil {
		return err
	}
	var request facematch.AdminUpdate
	if err := c.BodyParser(&request); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	updated, err := a.config.Admins.UpdateAdmin(c.UserContext(), id.UserID, c.Params("id"), request)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

func (a *WebApp) deleteAdmin(c *fiber.Ctx) error {
	id, err := a.admin(c, true)
	if err != nil {
		return err
	}
	if err := a.config.Admins.DeleteAdmin(c.UserContext(), id.UserID, c.Params("id")); err != nil {
		return err
	}
	log.Ctx(c.UserContext()).Info().Str("admin", c.Params("id")).Str("by", id.UserID).Msg("admin deleted")
	return c.SendStatus(http.StatusNoContent)
}

func (a *WebApp) chat(c *fiber.Ctx) error {
	var request struct {
		Message string `json:"message"`
	}
	if err := c.BodyParser(&request); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(a.config.Bot.Reply(c.UserContext(), request.Message))
}
