package messaging

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/intake/internal/platform/whatsapp"
)

// maxPayloadBytes caps inbound webhook bodies.
const maxPayloadBytes = 1 << 20

type Handler struct {
	gateway     *Gateway
	verifyToken string
	appSecret   string
}

// NewHandler authenticates POSTs with appSecret when it is set.
func NewHandler(gateway *Gateway, verifyToken, appSecret string) *Handler {
	return &Handler{gateway: gateway, verifyToken: verifyToken, appSecret: appSecret}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/webhooks/whatsapp")
	g.GET("", h.Verify)
	g.POST("", h.Receive)
}

// Verify answers the subscription handshake.
func (h *Handler) Verify(c echo.Context) error {
	challenge, ok := whatsapp.VerifyChallenge(
		c.QueryParam("hub.mode"),
		c.QueryParam("hub.verify_token"),
		c.QueryParam("hub.challenge"),
		h.verifyToken,
	)
	if !ok {
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	return c.String(http.StatusOK, challenge)
}

// Receive acknowledges a notification and hands its messages to the
// gateway.
func (h *Handler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPayloadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	if len(body) > maxPayloadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
	}
	if h.appSecret != "" && !whatsapp.VerifySignature(body, h.appSecret, c.Request().Header.Get(whatsapp.SignatureHeader)) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	}

	var p whatsapp.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	h.gateway.Dispatch(c.Request().Context(), p.Messages())
	return c.NoContent(http.StatusOK)
}
