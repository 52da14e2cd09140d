package match

import (
	"errors"
	"testing"
)

func TestCombine(t *testing.T) {
	tests := []struct {
		name     string
		newScore float64
		oldScore float64
		distance int
		want     float64
	}{
		{"both zero", 0.0, 0.0, 0, 0.0},
		{"old halved at distance zero", 0.0, 1.0, 0, 0.5},
		{"old third at distance one", 0.0, 1.0, 1, 1.0 / 3.0},
		{"old quartered at distance two", 0.0, 1.0, 2, 0.25},
		{"contributions add", 0.5, 0.5, 0, 0.75},
		{"saturates at one", 1.0, 1.0, 0, 1.0},
		{"new score carried through", 0.25, 0.0, 5, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Combine(tt.newScore, tt.oldScore, tt.distance)
			if err != nil {
				t.Fatalf("Combine(%g, %g, %d) returned error: %v", tt.newScore, tt.oldScore, tt.distance, err)
			}
			if got != tt.want {
				t.Errorf("Combine(%g, %g, %d) = %g, want %g", tt.newScore, tt.oldScore, tt.distance, got, tt.want)
			}
		})
	}
}

func TestCombineValidation(t *testing.T) {
	tests := []struct {
		name     string
		newScore float64
		oldScore float64
		distance int
		wantErr  error
	}{
		{"new score negative", -0.1, 0.5, 0, ErrInvalidScore},
		{"new score above one", 1.1, 0.5, 0, ErrInvalidScore},
		{"old score negative", 0.5, -0.1, 0, ErrInvalidScore},
		{"old score above one", 0.5, 1.1, 0, ErrInvalidScore},
		{"negative distance", 0.5, 0.5, -1, ErrInvalidDistance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Combine(tt.newScore, tt.oldScore, tt.distance)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Combine(%g, %g, %d) error = %v, want %v", tt.newScore, tt.oldScore, tt.distance, err, tt.wantErr)
			}
		})
	}
}
