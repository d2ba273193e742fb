package validation

import (
	"testing"

	"github.com/avoronin/picmarket/internal/model"
)

func TestValidateImage(t *testing.T) {
	tests := []struct {
		name       string
		in         ImageInput
		wantFields []string
	}{
		{
			name: "valid create input",
			in: ImageInput{
				Name:        "Kitten",
				PriceCents:  900100,
				Extension:   model.ExtensionPNG,
				DataSize:    1024,
				RequireData: true,
				MaxDataSize: 2 << 20,
			},
			wantFields: nil,
		},
		{
			name: "empty name",
			in: ImageInput{
				Name:        "   ",
				PriceCents:  100,
				Extension:   model.ExtensionJPG,
				DataSize:    10,
				RequireData: true,
			},
			wantFields: []string{"name"},
		},
		{
			name: "negative price",
			in: ImageInput{
				Name:        "Kitten",
				PriceCents:  -1,
				Extension:   model.ExtensionJPG,
				DataSize:    10,
				RequireData: true,
			},
			wantFields: []string{"price"},
		},
		{
			name: "price above maximum",
			in: ImageInput{
				Name:        "Kitten",
				PriceCents:  model.MaxPriceCents + 1,
				Extension:   model.ExtensionJPG,
				DataSize:    10,
				RequireData: true,
			},
			wantFields: []string{"price"},
		},
		{
			name: "missing required file",
			in: ImageInput{
				Name:        "Kitten",
				PriceCents:  100,
				RequireData: true,
			},
			wantFields: []string{"file"},
		},
		{
			name: "missing file allowed on update",
			in: ImageInput{
				Name:       "Kitten",
				PriceCents: 100,
			},
			wantFields: nil,
		},
		{
			name: "unsupported extension",
			in: ImageInput{
				Name:        "Kitten",
				PriceCents:  100,
				Extension:   "gif",
				DataSize:    10,
				RequireData: true,
			},
			wantFields: []string{"file"},
		},
		{
			name: "file too large",
			in: ImageInput{
				Name:        "Kitten",
				PriceCents:  100,
				Extension:   model.ExtensionJPG,
				DataSize:    (2 << 20) + 1,
				RequireData: true,
				MaxDataSize: 2 << 20,
			},
			wantFields: []string{"file"},
		},
		{
			name: "all fields invalid",
			in: ImageInput{
				Name:        "",
				PriceCents:  -5,
				RequireData: true,
			},
			wantFields: []string{"name", "price", "file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateImage(tt.in)
			if len(errs) != len(tt.wantFields) {
				t.Fatalf("ValidateImage() errors = %v, want fields %v", errs, tt.wantFields)
			}
			for _, field := range tt.wantFields {
				if _, ok := errs[field]; !ok {
					t.Fatalf("ValidateImage() missing error for field %q, got %v", field, errs)
				}
			}
		})
	}
}

func TestValidateCredentials(t *testing.T) {
	tests := []struct {
		name       string
		username   string
		password   string
		wantFields []string
	}{
		{
			name:     "valid",
			username: "alice",
			password: "secret1",
		},
		{
			name:       "blank username",
			username:   "  ",
			password:   "secret1",
			wantFields: []string{"username"},
		},
		{
			name:       "short password",
			username:   "alice",
			password:   "12345",
			wantFields: []string{"password"},
		},
		{
			name:       "both invalid",
			username:   "",
			password:   "",
			wantFields: []string{"username", "password"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateCredentials(tt.username, tt.password)
			if len(errs) != len(tt.wantFields) {
				t.Fatalf("ValidateCredentials() errors = %v, want fields %v", errs, tt.wantFields)
			}
			for _, field := range tt.wantFields {
				if _, ok := errs[field]; !ok {
					t.Fatalf("ValidateCredentials() missing error for field %q, got %v", field, errs)
				}
			}
		})
	}
}
