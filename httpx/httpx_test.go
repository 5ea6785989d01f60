package httpx

import (
	"context"
	"testing"
	"time"
)

func TestServerAndClientRoundTrip(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/ping", func(c Context) error {
			return c.JSON(StatusOK, map[string]string{"message": "pong"})
		})
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))

	var body struct {
		Message string `json:"message"`
	}
	resp, err := client.Get(context.Background(), "/ping", &body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode())
	}
	if body.Message != "pong" {
		t.Fatalf("unexpected body: %#v", body)
	}
}

func TestErrorHandlerWrapsEchoHTTPError(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/fail", func(c Context) error {
			return HTTPError(StatusBadRequest, "bad request")
		})
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))

	resp, err := client.Get(context.Background(), "/fail", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if resp == nil {
		t.Fatalf("expected response for error path")
	}
	if resp.StatusCode() != StatusBadRequest {
		t.Fatalf("unexpected status: %d", resp.StatusCode())
	}
}

func TestValidatorMiddleware(t *testing.T) {
	validator := func(c Context) error {
		if c.Request().Header.Get("X-Allow") != "yes" {
			return HTTPError(StatusBadRequest, "blocked")
		}
		return nil
	}
	server := NewServer(WithValidators(validator))
	server.RegisterRoutes(func(a *App) {
		a.GET("/secure", func(c Context) error { return c.NoContent(StatusOK) })
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))

	// blocked
	if _, err := client.Get(context.Background(), "/secure", nil); err == nil {
		t.Fatalf("expected validation error")
	}

	// allowed
	resp, err := client.Get(context.Background(), "/secure", nil, WithRequestHeaders(map[string]string{"X-Allow": "yes"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode())
	}
}

func TestTimeoutMiddlewareBoundsRequestContext(t *testing.T) {
	server := NewServer(AppendMiddlewares(TimeoutMiddleware(50 * time.Millisecond)))
	server.RegisterRoutes(func(a *App) {
		a.GET("/slow", func(c Context) error {
			select {
			case <-c.Request().Context().Done():
				return HTTPError(StatusServiceUnavailable, "timed out")
			case <-time.After(time.Second):
				return c.NoContent(StatusOK)
			}
		})
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))
	resp, err := client.Get(context.Background(), "/slow", nil)
	if err == nil {
		t.Fatalf("expected error from the timed-out handler")
	}
	if resp.StatusCode() != StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", resp.StatusCode())
	}
}

func TestRouterGroupsRoutesUnderPrefix(t *testing.T) {
	var mwHits int
	counter := func(next HandlerFunc) HandlerFunc {
		return func(c Context) error {
			mwHits++
			return next(c)
		}
	}

	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		r := NewRouter(a, "/api", counter)
		r.GET("/one", func(c Context) error { return c.NoContent(StatusOK) }).
			GET("/two", func(c Context) error { return c.NoContent(StatusOK) })
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))
	for _, path := range []string{"/api/one", "/api/two"} {
		resp, err := client.Get(context.Background(), path, nil)
		if err != nil {
			t.Fatalf("GET %s error: %v", path, err)
		}
		if resp.StatusCode() != StatusOK {
			t.Fatalf("GET %s status: %d", path, resp.StatusCode())
		}
	}
	if mwHits != 2 {
		t.Fatalf("group middleware ran %d times, want 2", mwHits)
	}

	// Routes outside the prefix are not registered.
	if _, err := client.Get(context.Background(), "/one", nil); err == nil {
		t.Fatalf("expected 404 outside the group prefix")
	}
}

func TestPostBindsJSONBody(t *testing.T) {
	type in struct {
		Name string `json:"name"`
	}
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.POST("/echo", func(c Context) error {
			var body in
			if err := c.Bind(&body); err != nil {
				return HTTPError(StatusBadRequest, "bad body")
			}
			return c.JSON(StatusOK, body)
		})
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))
	var out in
	resp, err := client.Post(context.Background(), "/echo", in{Name: "clinio"}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusOK || out.Name != "clinio" {
		t.Fatalf("echo = %+v status %d", out, resp.StatusCode())
	}
}
