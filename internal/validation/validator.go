// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

// Package validation provides struct validation using go-playground/validator v10.
// It provides a thread-safe singleton validator instance with custom validators
// for xbackup's configuration rules.
//
// Features:
//   - Singleton validator instance (thread-safe, caches struct info)
//   - Field names reported as configuration keys (koanf tags), e.g. "storage.s3.bucket"
//   - Custom validators for compression/encryption method names and cipher chunk sizes
//   - Uses WithRequiredStructEnabled option (v11+ compatibility)
//
// Example usage:
//
//	type CompressionConfig struct {
//	    Method string `koanf:"method" validate:"compression_method"`
//	    Level  int    `koanf:"level" validate:"gte=-1,lte=22"`
//	}
//
//	if err := validation.ValidateStruct(&cfg); err != nil {
//	    return fmt.Errorf("invalid configuration: %w", err)
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/xbackup/internal/artifact"
	"github.com/tomtom215/xbackup/internal/streamcipher"
)

// singleton validator instance
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError represents a single field validation error with structured information.
type ValidationError struct {
	field   string
	tag     string
	param   string
	value   interface{}
	message string
}

// Field returns the configuration key that failed validation.
func (e *ValidationError) Field() string {
	return e.field
}

// Tag returns the validation tag that failed.
func (e *ValidationError) Tag() string {
	return e.tag
}

// Param returns the parameter for the validation tag (e.g., "100" for "max=100").
func (e *ValidationError) Param() string {
	return e.param
}

// Value returns the actual value that failed validation.
func (e *ValidationError) Value() interface{} {
	return e.value
}

// Error returns a human-readable error message.
func (e *ValidationError) Error() string {
	return e.message
}

// Errors represents a collection of validation errors.
type Errors struct {
	errors []ValidationError
}

// Errors returns the slice of validation errors.
func (ve *Errors) Errors() []ValidationError {
	return ve.errors
}

// Fields returns the failing keys in report order.
func (ve *Errors) Fields() []string {
	fields := make([]string, len(ve.errors))
	for i := range ve.errors {
		fields[i] = ve.errors[i].field
	}
	return fields
}

// Error implements the error interface, returning a combined error message.
func (ve *Errors) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}

	messages := make([]string, 0, len(ve.errors))
	for i := range ve.errors {
		messages = append(messages, ve.errors[i].Error())
	}

	return strings.Join(messages, "; ")
}

// GetValidator returns the singleton validator instance.
// The validator is initialized once with custom validators and options.
// This function is thread-safe.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report koanf keys instead of Go field names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("koanf"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})

		mustRegister("compression_method", validateCompressionMethod)
		mustRegister("encryption_method", validateEncryptionMethod)
		mustRegister("chunk_size", validateChunkSize)
	})

	return validate
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

func validateCompressionMethod(fl validator.FieldLevel) bool {
	m, err := artifact.ParseMethod(fl.Field().String())
	return err == nil && artifact.IsCompression(m)
}

func validateEncryptionMethod(fl validator.FieldLevel) bool {
	m, err := artifact.ParseMethod(fl.Field().String())
	return err == nil && artifact.IsEncryption(m)
}

// chunk_size accepts zero (use the default) or a positive multiple of 16 up to the reader limit.
func validateChunkSize(fl validator.FieldLevel) bool {
	n := fl.Field().Int()
	if n == 0 {
		return true
	}
	return n > 0 && n%streamcipher.IVSize == 0 && n <= streamcipher.MaxChunkSize
}

// ValidateStruct validates a struct using the singleton validator.
// Returns nil if validation passes, or *Errors if validation fails.
//
// Example:
//
//	if err := ValidateStruct(&cfg); err != nil {
//	    for _, fe := range err.Errors() {
//	        log.Error().Str("key", fe.Field()).Msg(fe.Error())
//	    }
//	}
func ValidateStruct(s interface{}) *Errors {
	v := GetValidator()

	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &Errors{
			errors: []ValidationError{
				{
					field:   "unknown",
					tag:     "unknown",
					message: err.Error(),
				},
			},
		}
	}

	fieldErrors := make([]ValidationError, len(validationErrs))
	for i, fieldErr := range validationErrs {
		field := keyPath(fieldErr.Namespace())
		fieldErrors[i] = ValidationError{
			field:   field,
			tag:     fieldErr.Tag(),
			param:   fieldErr.Param(),
			value:   fieldErr.Value(),
			message: translateError(fieldErr, field),
		}
	}

	return &Errors{errors: fieldErrors}
}

// keyPath drops the root type name from a validator namespace:
// "Config.storage.s3.bucket" becomes "storage.s3.bucket".
func keyPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

// errorMessageTemplates maps validation tags to message templates.
var errorMessageTemplates = map[string]string{
	"required":           "%s is required",
	"url":                "%s must be a valid URL",
	"http_url":           "%s must be a valid http(s) URL",
	"dir":                "%s must be an existing directory",
	"filepath":           "%s must be a valid file path",
	"compression_method": "%s must be one of: none, gzip, bzip2, xz, zstd, zip, 7z",
	"encryption_method":  "%s must be one of: none, aes, gpg, zip, 7z",
	"chunk_size":         "%s must be a positive multiple of 16 no larger than 64 MiB",
}

// errorMessageWithParam maps validation tags to templates that include param.
var errorMessageWithParam = map[string]string{
	"oneof":       "%s must be one of: %s",
	"gte":         "%s must be greater than or equal to %s",
	"lte":         "%s must be less than or equal to %s",
	"gt":          "%s must be greater than %s",
	"lt":          "%s must be less than %s",
	"required_if": "%s is required when %s",
}

// translateError converts a validator.FieldError to a human-readable message.
func translateError(fe validator.FieldError, field string) string {
	tag := fe.Tag()
	param := fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}

	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}

	return translateMinMax(fe, field, tag, param)
}

// translateMinMax handles min/max validation with type-specific messages.
func translateMinMax(fe validator.FieldError, field, tag, param string) string {
	isString := fe.Kind() == reflect.String

	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
