package response

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeAcceptsNumberOrString(t *testing.T) {
	cases := map[string]Code{
		`{"code":200}`:     200,
		`{"code":"200"}`:   200,
		`{"code":"401"}`:   401,
		`{"code":500.0}`:   500,
		`{"code":null}`:    0,
		`{"message":"hi"}`: 0,
	}
	for body, want := range cases {
		var env Envelope
		require.NoError(t, json.Unmarshal([]byte(body), &env), body)
		assert.Equal(t, want, env.Code, body)
	}

	var env Envelope
	assert.Error(t, json.Unmarshal([]byte(`{"code":"ok"}`), &env))
}

func TestEnvelopeDecode(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"code":"200","message":"success","data":{"name":"x"}}`), &env))
	assert.True(t, env.OK())

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, env.Decode(&out))
	assert.Equal(t, "x", out.Name)

	empty := Envelope{Data: json.RawMessage("null")}
	assert.NoError(t, empty.Decode(&out))
}

func TestFiberHelpers(t *testing.T) {
	app := fiber.New()
	app.Get("/ok", func(c *fiber.Ctx) error { return SuccessText(c, fiber.Map{"a": 1}) })
	app.Get("/biz", func(c *fiber.Ctx) error { return Error(c, CodeUnauthorized, "token expired") })
	app.Get("/deny", func(c *fiber.Ctx) error { return Forbidden(c, "") })

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"code":"200","message":"success","data":{"a":1}}`, string(body))

	resp, err = app.Test(httptest.NewRequest("GET", "/biz", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	var env Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, CodeUnauthorized, env.Code)

	resp, err = app.Test(httptest.NewRequest("GET", "/deny", nil))
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
}
