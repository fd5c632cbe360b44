package codegen

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"trivia-sync-service/internal/domain"
)

func TestGenerateUniqueCodes(t *testing.T) {
	issued := map[string]bool{}
	gen := NewGenerator(func(_ context.Context, code string) (bool, error) {
		return issued[code], nil
	})

	for i := 0; i < 200; i++ {
		code, err := gen.Generate(context.Background())
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !Valid(code) {
			t.Fatalf("invalid code %q", code)
		}
		if issued[code] {
			t.Fatalf("code %q issued twice", code)
		}
		issued[code] = true
	}
}

func TestGenerateRetriesOnCollision(t *testing.T) {
	// First draw is all zero bytes ("AAAAAA"), second all ones ("BBBBBB").
	src := bytes.NewReader(append(bytes.Repeat([]byte{0}, Length), bytes.Repeat([]byte{1}, Length)...))
	checks := 0
	gen := NewGeneratorWithSource(func(_ context.Context, code string) (bool, error) {
		checks++
		return code == "AAAAAA", nil
	}, src)

	code, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if code != "BBBBBB" || checks != 2 {
		t.Fatalf("expected second draw after one collision, got %q after %d checks", code, checks)
	}
}

func TestGenerateExhausted(t *testing.T) {
	checks := 0
	gen := NewGenerator(func(context.Context, string) (bool, error) {
		checks++
		return true, nil
	})

	_, err := gen.Generate(context.Background())
	if !errors.Is(err, domain.ErrCodeGenerationExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if checks != MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", MaxAttempts, checks)
	}
}

func TestGenerateSurfacesStoreErrors(t *testing.T) {
	boom := errors.New("store down")
	gen := NewGenerator(func(context.Context, string) (bool, error) { return false, boom })
	if _, err := gen.Generate(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestNormalizeAndValid(t *testing.T) {
	if got := Normalize("  abc234 "); got != "ABC234" {
		t.Fatalf("expected upper-cased code, got %q", got)
	}
	for _, bad := range []string{"ABC23", "ABC2345", "ABCD10", "ABCDEO"} {
		if Valid(bad) {
			t.Fatalf("expected %q to be invalid", bad)
		}
	}
}
