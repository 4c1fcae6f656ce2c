package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func signTestToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func setupAuthApp() *fiber.App {
	app := fiber.New()
	app.Get("/protected", Protected(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"user_id": c.Locals("user_id"),
			"role":    c.Locals("role"),
		})
	})
	app.Get("/admin", Protected(), AdminOnly(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, path, token string) *http.Response {
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return resp
}

func TestProtected(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	app := setupAuthApp()

	t.Run("Missing Header", func(t *testing.T) {
		resp := doRequest(t, app, "/protected", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Valid Token", func(t *testing.T) {
		token := signTestToken(t, "test-secret", jwt.MapClaims{
			"user_id": float64(7),
			"role":    "parent",
			"exp":     time.Now().Add(time.Hour).Unix(),
		})
		resp := doRequest(t, app, "/protected", token)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		token := signTestToken(t, "other-secret", jwt.MapClaims{
			"user_id": float64(7),
			"exp":     time.Now().Add(time.Hour).Unix(),
		})
		resp := doRequest(t, app, "/protected", token)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Expired Token", func(t *testing.T) {
		token := signTestToken(t, "test-secret", jwt.MapClaims{
			"user_id": float64(7),
			"exp":     time.Now().Add(-time.Hour).Unix(),
		})
		resp := doRequest(t, app, "/protected", token)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAdminOnly(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	app := setupAuthApp()

	t.Run("Admin Passes", func(t *testing.T) {
		token := signTestToken(t, "test-secret", jwt.MapClaims{
			"user_id": float64(1),
			"role":    "admin",
			"exp":     time.Now().Add(time.Hour).Unix(),
		})
		resp := doRequest(t, app, "/admin", token)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Parent Forbidden", func(t *testing.T) {
		token := signTestToken(t, "test-secret", jwt.MapClaims{
			"user_id": float64(2),
			"role":    "parent",
			"exp":     time.Now().Add(time.Hour).Unix(),
		})
		resp := doRequest(t, app, "/admin", token)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("Missing Role Claim Forbidden", func(t *testing.T) {
		token := signTestToken(t, "test-secret", jwt.MapClaims{
			"user_id": float64(3),
			"exp":     time.Now().Add(time.Hour).Unix(),
		})
		resp := doRequest(t, app, "/admin", token)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}
