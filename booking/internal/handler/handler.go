package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hostelhub/booking-service/booking/internal/errs"
	"github.com/hostelhub/booking-service/booking/internal/model"
	"github.com/hostelhub/booking-service/pkg/validate"
)

type Handler struct {
	bookingSvc BookingService
	log        *zap.Logger
}

func New(bookingSvc BookingService, log *zap.Logger) *Handler {
	return &Handler{
		bookingSvc: bookingSvc,
		log:        log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", newRateLimiterMW(baseRPS))
	base.GET("/manage/health", h.Health)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(requestLoggerConfig()),
		middleware.RequestID(),
		newRateLimiterMW(apiRPS),
	)

	api.POST("/bookings", h.CreateBooking)
	api.GET("/bookings/:bookingUid", h.GetBooking)
	api.PATCH("/bookings/:bookingUid", h.UpdateBooking)
	api.POST("/bookings/:bookingUid/confirm", h.ConfirmBooking)
	api.POST("/bookings/:bookingUid/cancel", h.CancelBooking)
	api.GET("/availability", h.Availability)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrOverlapConflict),
		errors.Is(err, errs.ErrStaleVersion),
		errors.Is(err, errs.ErrTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrRepositoryUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) CreateBooking(c echo.Context) error {
	var req model.CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	b, err := h.bookingSvc.CreateBooking(ctx, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBooking(c echo.Context) error {
	bookingUid := c.Param("bookingUid")
	if bookingUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "bookingUid is empty")
	}
	b, err := h.bookingSvc.GetBooking(c.Request().Context(), bookingUid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) UpdateBooking(c echo.Context) error {
	bookingUid := c.Param("bookingUid")
	if bookingUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "bookingUid is empty")
	}
	var req model.UpdateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	b, err := h.bookingSvc.UpdateBooking(c.Request().Context(), bookingUid, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ConfirmBooking(c echo.Context) error {
	bookingUid := c.Param("bookingUid")
	if bookingUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "bookingUid is empty")
	}
	var req model.VersionedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.bookingSvc.ConfirmBooking(c.Request().Context(), bookingUid, req.ExpectedVersion)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) CancelBooking(c echo.Context) error {
	bookingUid := c.Param("bookingUid")
	if bookingUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "bookingUid is empty")
	}
	var req model.VersionedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.bookingSvc.CancelBooking(c.Request().Context(), bookingUid, req.ExpectedVersion)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Availability(c echo.Context) error {
	bedType := model.BedType(c.QueryParam("bedType"))
	from, err := time.Parse(time.RFC3339, c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "from: "+err.Error())
	}
	till, err := time.Parse(time.RFC3339, c.QueryParam("till"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "till: "+err.Error())
	}
	items, err := h.bookingSvc.FindOverlapping(c.Request().Context(), bedType, from, till)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}
