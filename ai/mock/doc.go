// Package mock provides test double implementations of the ai interfaces.
//
// This package contains a mock implementation of ai.Provider for use in unit
// tests. The mock allows tests to run without external embedding services and
// enables controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	p := mock.NewProvider()
//	vector, tokens, err := p.Embed(ctx, "test")
//
//	// Custom behavior injection
//	p.EmbedFunc = func(ctx context.Context, text string) ([]float32, int, error) {
//	    return nil, 0, errors.New("provider down")
//	}
//
//	// Check call counts
//	count := p.CallCount()
//
// # Default Behavior
//
// The mock returns deterministic unit vectors derived from an FNV hash of the
// input text, so the same text always embeds to the same vector.
package mock
