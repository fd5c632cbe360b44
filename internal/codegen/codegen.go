// Package codegen issues short, human-enterable join codes.
package codegen

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"trivia-sync-service/internal/domain"
)

const (
	// Alphabet omits O, 0, I and 1. Its 32 symbols map evenly onto byte values.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// Length of every issued code.
	Length = 6
	// MaxAttempts bounds generate-then-check retries for one session.
	MaxAttempts = 10
)

// ExistsFunc reports whether a code is already held by a session in the store of record.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Generator draws random codes and checks them for collisions.
type Generator struct {
	exists ExistsFunc
	random io.Reader
}

func NewGenerator(exists ExistsFunc) *Generator {
	return &Generator{exists: exists, random: rand.Reader}
}

// NewGeneratorWithSource is used by tests to make codes deterministic.
func NewGeneratorWithSource(exists ExistsFunc, random io.Reader) *Generator {
	return &Generator{exists: exists, random: random}
}

// Generate returns an unused code or domain.ErrCodeGenerationExhausted after MaxAttempts collisions.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		code, err := g.draw()
		if err != nil {
			return "", fmt.Errorf("draw code: %w", err)
		}
		taken, err := g.exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", domain.ErrCodeGenerationExhausted
}

func (g *Generator) draw() (string, error) {
	buf := make([]byte, Length)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(buf), nil
}

// Normalize trims and upper-cases user input.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether an already normalized code could have been issued by Generate.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
