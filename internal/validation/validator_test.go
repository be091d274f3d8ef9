// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package validation

import (
	"strings"
	"testing"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
	if v1 == nil {
		t.Error("GetValidator() should not return nil")
	}
}

type innerSection struct {
	Bucket string `koanf:"bucket" validate:"required"`
	Parts  int    `koanf:"parts" validate:"min=1,max=10"`
}

type testConfig struct {
	Compression string       `koanf:"compression" validate:"compression_method"`
	Encryption  string       `koanf:"encryption" validate:"encryption_method"`
	ChunkSize   int          `koanf:"chunk_size" validate:"chunk_size"`
	Format      string       `koanf:"format" validate:"oneof=legacy aead"`
	Name        string       `koanf:"name" validate:"omitempty,min=3"`
	Inner       innerSection `koanf:"inner"`
	Untagged    string       `validate:"omitempty,max=2"`
}

func validTestConfig() testConfig {
	return testConfig{
		Compression: "zstd",
		Encryption:  "aes",
		Format:      "legacy",
		Inner:       innerSection{Bucket: "b", Parts: 2},
	}
}

func TestValidateStruct_Valid(t *testing.T) {
	cfg := validTestConfig()
	if err := ValidateStruct(&cfg); err != nil {
		t.Fatalf("ValidateStruct() = %v", err)
	}

	for _, alias := range []string{"", "none", "7z", "gz", "zst", "bz2"} {
		cfg := validTestConfig()
		cfg.Compression = alias
		if err := ValidateStruct(&cfg); err != nil {
			t.Errorf("compression %q rejected: %v", alias, err)
		}
	}
	for _, alias := range []string{"", "gpg", "zip", "7zip"} {
		cfg := validTestConfig()
		cfg.Encryption = alias
		if err := ValidateStruct(&cfg); err != nil {
			t.Errorf("encryption %q rejected: %v", alias, err)
		}
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*testConfig)
		field    string
		tag      string
		contains string
	}{
		{
			name:     "unknown compression",
			mutate:   func(c *testConfig) { c.Compression = "lz4" },
			field:    "compression",
			tag:      "compression_method",
			contains: "must be one of",
		},
		{
			name:   "encryption method used as compression",
			mutate: func(c *testConfig) { c.Compression = "aes" },
			field:  "compression",
			tag:    "compression_method",
		},
		{
			name:   "compression method used as encryption",
			mutate: func(c *testConfig) { c.Encryption = "xz" },
			field:  "encryption",
			tag:    "encryption_method",
		},
		{
			name:     "chunk size not a multiple of 16",
			mutate:   func(c *testConfig) { c.ChunkSize = 100 },
			field:    "chunk_size",
			tag:      "chunk_size",
			contains: "multiple of 16",
		},
		{
			name:   "negative chunk size",
			mutate: func(c *testConfig) { c.ChunkSize = -16 },
			field:  "chunk_size",
			tag:    "chunk_size",
		},
		{
			name:   "chunk size too large",
			mutate: func(c *testConfig) { c.ChunkSize = 128 << 20 },
			field:  "chunk_size",
			tag:    "chunk_size",
		},
		{
			name:     "oneof",
			mutate:   func(c *testConfig) { c.Format = "cbc" },
			field:    "format",
			tag:      "oneof",
			contains: "legacy aead",
		},
		{
			name:     "string min",
			mutate:   func(c *testConfig) { c.Name = "ab" },
			field:    "name",
			tag:      "min",
			contains: "characters",
		},
		{
			name:     "nested required",
			mutate:   func(c *testConfig) { c.Inner.Bucket = "" },
			field:    "inner.bucket",
			tag:      "required",
			contains: "inner.bucket is required",
		},
		{
			name:     "nested numeric max",
			mutate:   func(c *testConfig) { c.Inner.Parts = 11 },
			field:    "inner.parts",
			tag:      "max",
			contains: "at most 10",
		},
		{
			name:   "untagged field keeps Go name",
			mutate: func(c *testConfig) { c.Untagged = "abc" },
			field:  "Untagged",
			tag:    "max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(&cfg)

			err := ValidateStruct(&cfg)
			if err == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			errs := err.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors (%v), want 1", len(errs), err)
			}
			if errs[0].Field() != tt.field {
				t.Errorf("Field() = %q, want %q", errs[0].Field(), tt.field)
			}
			if errs[0].Tag() != tt.tag {
				t.Errorf("Tag() = %q, want %q", errs[0].Tag(), tt.tag)
			}
			if tt.contains != "" && !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Error() = %q, want it to contain %q", err.Error(), tt.contains)
			}
		})
	}
}

func TestValidateStruct_MultipleErrors(t *testing.T) {
	cfg := validTestConfig()
	cfg.Compression = "lz4"
	cfg.Inner.Bucket = ""

	err := ValidateStruct(&cfg)
	if err == nil {
		t.Fatal("ValidateStruct() = nil, want error")
	}

	fields := err.Fields()
	if len(fields) != 2 || fields[0] != "compression" || fields[1] != "inner.bucket" {
		t.Errorf("Fields() = %v", fields)
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("Error() = %q, want messages joined by '; '", err.Error())
	}
}

func TestValidateStruct_NonStruct(t *testing.T) {
	err := ValidateStruct("not a struct")
	if err == nil {
		t.Fatal("ValidateStruct() = nil, want error")
	}
	if err.Errors()[0].Field() != "unknown" {
		t.Errorf("Field() = %q, want unknown", err.Errors()[0].Field())
	}
}

func TestErrors_Empty(t *testing.T) {
	ve := &Errors{}
	if ve.Error() != "validation failed" {
		t.Errorf("Error() = %q", ve.Error())
	}
}
