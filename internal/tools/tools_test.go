package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Alserial/VoiceRAG/internal/utils"
)

func okTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: "test tool",
		Handler: func(ctx context.Context, inv Invocation) (Result, error) {
			return Result{Text: `{"ok":true}`, Direction: ToServer}, nil
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(okTool("search")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(okTool("search")); !utils.IsCode(err, utils.CodeConflict) {
		t.Errorf("duplicate Register() error = %v, want conflict", err)
	}
	if err := r.Register(Tool{Name: "broken"}); !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Errorf("Register() without handler error = %v, want invalid argument", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestDispatch_AlwaysOneResult(t *testing.T) {
	r := NewRegistry()
	r.Register(okTool("search"))
	r.Register(Tool{
		Name: "failing",
		Handler: func(ctx context.Context, inv Invocation) (Result, error) {
			return Result{}, errors.New("backend down")
		},
	})

	// happy path
	res, err := r.Dispatch(context.Background(), "search", Invocation{})
	if err != nil {
		t.Fatalf("Dispatch(search) error = %v", err)
	}
	if res.Text == "" || res.Direction != ToServer {
		t.Errorf("Dispatch(search) = %+v", res)
	}

	// handler error still yields a result payload
	res, err = r.Dispatch(context.Background(), "failing", Invocation{})
	if err == nil {
		t.Error("Dispatch(failing) error = nil, want error for logging")
	}
	assertErrorPayload(t, res)

	// unknown tool still yields a result payload
	res, err = r.Dispatch(context.Background(), "nope", Invocation{})
	if !utils.IsCode(err, utils.CodeNotFound) {
		t.Errorf("Dispatch(nope) error = %v, want not found", err)
	}
	assertErrorPayload(t, res)
}

func TestDispatch_RecoversHandlerPanic(t *testing.T) {
	r := NewRegistry()
	r.Register(Tool{
		Name: "exploding",
		Handler: func(ctx context.Context, inv Invocation) (Result, error) {
			panic("handler exploded")
		},
	})

	res, err := r.Dispatch(context.Background(), "exploding", Invocation{})
	if !utils.IsCode(err, utils.CodeInternal) {
		t.Errorf("Dispatch(exploding) error = %v, want internal", err)
	}
	assertErrorPayload(t, res)
	if !strings.Contains(res.Text, "handler exploded") {
		t.Errorf("error payload %q does not carry the panic value", res.Text)
	}
}

func assertErrorPayload(t *testing.T, res Result) {
	t.Helper()
	if res.Direction != ToServer {
		t.Errorf("error result direction = %v, want ToServer", res.Direction)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(res.Text), &payload); err != nil {
		t.Fatalf("error result is not json: %v", err)
	}
	if payload["status"] != "error" || payload["error"] == "" {
		t.Errorf("error payload = %v", payload)
	}
}

func TestDispatch_DefaultsDirection(t *testing.T) {
	r := NewRegistry()
	r.Register(Tool{
		Name: "nodir",
		Handler: func(ctx context.Context, inv Invocation) (Result, error) {
			return Result{Text: "{}"}, nil
		},
	})
	res, err := r.Dispatch(context.Background(), "nodir", Invocation{})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if res.Direction != ToServer {
		t.Errorf("Direction = %v, want ToServer default", res.Direction)
	}
}

func TestSchemas_SortedWithDefaults(t *testing.T) {
	r := NewRegistry()
	r.Register(okTool("zeta"))
	r.Register(okTool("alpha"))

	schemas := r.Schemas()
	if len(schemas) != 2 {
		t.Fatalf("Schemas() len = %d, want 2", len(schemas))
	}
	if schemas[0]["name"] != "alpha" || schemas[1]["name"] != "zeta" {
		t.Errorf("Schemas() order = %v, %v", schemas[0]["name"], schemas[1]["name"])
	}
	if schemas[0]["type"] != "function" {
		t.Errorf("schema type = %v, want function", schemas[0]["type"])
	}
	params, ok := schemas[0]["parameters"].(map[string]interface{})
	if !ok || params["type"] != "object" {
		t.Errorf("default parameters = %v, want empty object schema", schemas[0]["parameters"])
	}
}
