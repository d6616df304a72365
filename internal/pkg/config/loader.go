// Package config provides fail-open loading of environment overrides.
//
// A malformed or out-of-range value never stops the worker: the loader keeps
// the default, reports a warning, and marks the result so the caller can log
// and count the fallback.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Outcome describes whether a loaded value fell back to its default.
type Outcome struct {
	// Warnings holds one message per rejected value. Empty when the
	// environment value was used or the variable was unset.
	Warnings []string

	// FallbackApplied is true when a set value was rejected.
	FallbackApplied bool
}

// Result is the value a loader settled on plus its Outcome.
type Result[T any] struct {
	Value T
	Outcome
}

// LoadEnv reads envKey, parses it and validates it.
// Unset or blank variables yield defaultValue without a warning. A value that
// fails parse or validate yields defaultValue with FallbackApplied set.
// A nil validate accepts every parsed value.
func LoadEnv[T any](envKey string, defaultValue T, parse func(string) (T, error), validate func(T) error) Result[T] {
	raw := strings.TrimSpace(os.Getenv(envKey))
	if raw == "" {
		return Result[T]{Value: defaultValue}
	}

	value, err := parse(raw)
	if err != nil {
		return fallback(envKey, defaultValue, fmt.Sprintf("cannot parse %q: %v", raw, err))
	}
	if validate != nil {
		if err := validate(value); err != nil {
			return fallback(envKey, defaultValue, err.Error())
		}
	}
	return Result[T]{Value: value}
}

func fallback[T any](envKey string, defaultValue T, reason string) Result[T] {
	return Result[T]{
		Value: defaultValue,
		Outcome: Outcome{
			Warnings:        []string{fmt.Sprintf("%s: %s, using default %v", envKey, reason, defaultValue)},
			FallbackApplied: true,
		},
	}
}

// LoadEnvString loads a string override.
func LoadEnvString(envKey, defaultValue string, validate func(string) error) Result[string] {
	return LoadEnv(envKey, defaultValue, func(s string) (string, error) { return s, nil }, validate)
}

// LoadEnvInt loads a base-10 integer override.
func LoadEnvInt(envKey string, defaultValue int, validate func(int) error) Result[int] {
	return LoadEnv(envKey, defaultValue, strconv.Atoi, validate)
}

// LoadEnvDuration loads a Go duration override such as "90s" or "1h30m".
func LoadEnvDuration(envKey string, defaultValue time.Duration, validate func(time.Duration) error) Result[time.Duration] {
	return LoadEnv(envKey, defaultValue, time.ParseDuration, validate)
}

// LoadEnvBool loads a boolean override accepted by strconv.ParseBool.
func LoadEnvBool(envKey string, defaultValue bool) Result[bool] {
	return LoadEnv(envKey, defaultValue, strconv.ParseBool, nil)
}
