package template

import (
	"errors"
	"testing"
)

func TestRenderSubstitutesDottedPaths(t *testing.T) {
	ctx := Context{
		"vars": map[string]any{"disk": "/dev/sda1"},
		"execution": map[string]any{
			"id": "exec-123",
		},
	}

	got, err := Render("cleanup {{ vars.disk }} for {{ execution.id }}", ctx, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "cleanup /dev/sda1 for exec-123"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRenderStrictFailsOnUndefinedToken(t *testing.T) {
	_, err := Render("rm {{ vars.missing }}", Context{"vars": map[string]any{}}, false)
	if err == nil {
		t.Fatal("expected an error for an undefined token in strict mode")
	}
	var undef *ErrUndefined
	if !errors.As(err, &undef) {
		t.Fatalf("expected *ErrUndefined, got %T", err)
	}
	if undef.Token != "vars.missing" {
		t.Errorf("ErrUndefined.Token = %q, want %q", undef.Token, "vars.missing")
	}
}

func TestRenderLenientReplacesUndefinedWithEmptyString(t *testing.T) {
	got, err := Render(`{"field": "{{ vars.missing }}"}`, Context{"vars": map[string]any{}}, true)
	if err != nil {
		t.Fatalf("unexpected error in lenient mode: %v", err)
	}
	want := `{"field": ""}`
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRenderCoercesNonStringValues(t *testing.T) {
	ctx := Context{"vars": map[string]any{"count": 3, "ratio": 1.5, "ok": true}}
	got, err := Render("{{ vars.count }} {{ vars.ratio }} {{ vars.ok }}", ctx, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "3 1.5 true"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRenderNoTokensIsUnchanged(t *testing.T) {
	got, err := Render("systemctl restart nginx", Context{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "systemctl restart nginx" {
		t.Errorf("Render() = %q, want unchanged input", got)
	}
}
