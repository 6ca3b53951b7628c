package httpapi

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/surfvault/internal/media"
	"github.com/i474232898/surfvault/internal/session"
	"github.com/i474232898/surfvault/internal/surfcondition"
	"github.com/i474232898/surfvault/internal/weather/providers"
)

var validate = validator.New()

// PlaceSearcher resolves place names to coordinates.
type PlaceSearcher interface {
	Search(ctx context.Context, name, language string) ([]providers.Place, error)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, sessions *session.Service, places PlaceSearcher) {
	v1 := app.Group("/api/v1")

	v1.Post("/sessions", func(c *fiber.Ctx) error {
		in, files, closeFiles, err := parseCreate(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		defer closeFiles()

		created, err := sessions.Create(c.UserContext(), in, files)
		if err != nil {
			return toHTTPError(err)
		}
		if created == nil {
			return fiber.NewError(fiber.StatusBadRequest, "session could not be created")
		}

		view, err := sessions.Get(c.UserContext(), created.ID)
		if err != nil {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(view)
	})

	v1.Get("/sessions", func(c *fiber.Ctx) error {
		var q listQuery
		if err := c.QueryParser(&q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		page, err := sessions.List(c.UserContext(), q.UserID, q.Page, q.PerPage)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(page)
	})

	v1.Get("/sessions/:id", func(c *fiber.Ctx) error {
		view, err := sessions.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(view)
	})

	v1.Put("/sessions/:id", func(c *fiber.Ctx) error {
		var in session.UpdateInput
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		updated, err := sessions.Update(c.UserContext(), c.Params("id"), in)
		if err != nil {
			return toHTTPError(err)
		}

		view, err := sessions.Get(c.UserContext(), updated.ID)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(view)
	})

	v1.Delete("/sessions/:id", func(c *fiber.Ctx) error {
		if err := sessions.Delete(c.UserContext(), c.Params("id")); err != nil {
			return toHTTPError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	v1.Get("/locations", func(c *fiber.Ctx) error {
		var q locationQuery
		if err := c.QueryParser(&q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		results, err := places.Search(c.UserContext(), q.Name, q.Language)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "failed to search locations")
		}
		return c.JSON(fiber.Map{"results": results})
	})
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrInvalidInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrMediaSave):
		return fiber.NewError(fiber.StatusBadGateway, "failed to save files")
	case errors.Is(err, session.ErrMediaDelete):
		return fiber.NewError(fiber.StatusBadGateway, "failed to delete files")
	case errors.Is(err, surfcondition.ErrIncompleteDay):
		return fiber.NewError(fiber.StatusBadGateway, "weather data unavailable")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "internal error")
	}
}

type listQuery struct {
	UserID  string `query:"userId" validate:"required"`
	Page    int    `query:"page" validate:"omitempty,min=1"`
	PerPage int    `query:"perPage" validate:"omitempty,min=1,max=100"`
}

type locationQuery struct {
	Name     string `query:"name" validate:"required,min=2"`
	Language string `query:"language" validate:"omitempty,len=2"`
}

// parseCreate reads a session from a multipart form, where every file* part
// is an attachment whose content type is given by the matching fileType*
// field, or from a JSON body without attachments.
func parseCreate(c *fiber.Ctx) (session.CreateInput, []media.File, func(), error) {
	var in session.CreateInput
	noop := func() {}

	if !strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		if err := c.BodyParser(&in); err != nil {
			return in, nil, noop, err
		}
		return in, nil, noop, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return in, nil, noop, err
	}
	in = session.CreateInput{
		UserID:    formValue(form, "userId"),
		Latitude:  formValue(form, "latitude"),
		Longitude: formValue(form, "longitude"),
		Title:     formValue(form, "title"),
		Date:      formValue(form, "date"),
		Time:      formValue(form, "time"),
	}

	var (
		files  []media.File
		opened []multipart.File
	)
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}
	for field, headers := range form.File {
		if !strings.HasPrefix(field, "file") || len(headers) == 0 {
			continue
		}
		header := headers[0]
		f, err := header.Open()
		if err != nil {
			closeAll()
			return in, nil, noop, err
		}
		opened = append(opened, f)

		contentType := formValue(form, "fileType"+strings.TrimPrefix(field, "file"))
		if contentType == "" {
			contentType = header.Header.Get(fiber.HeaderContentType)
		}
		files = append(files, media.File{
			FieldName:   field,
			ContentType: contentType,
			Size:        header.Size,
			Reader:      f,
		})
	}
	return in, files, closeAll, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}
