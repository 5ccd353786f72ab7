package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/berfenger/aurum2mqtt/internal/core/domain"
	"github.com/berfenger/aurum2mqtt/internal/core/port"
)

const (
	FORM_FIELD_BASE           = "base"
	FORM_ERROR_CANNOT_CONNECT = "cannot_connect"
	FORM_ERROR_INVALID_INPUT  = "invalid_input"
	FORM_ERROR_UNKNOWN        = "unknown"
	ABORT_ALREADY_CONFIGURED  = "already_configured"
)

var (
	ErrCannotConnect = errors.New("cannot connect to device")
	ErrInvalidInput  = errors.New("invalid input")
)

type EntryInput struct {
	Title     string
	Host      string
	Selection string
}

type ValidatedInput struct {
	Title     string
	Selection domain.Selection
}

// ValidateInput checks the user input of the config flow: the selection must
// parse and the device must answer with readable data.
func ValidateInput(ctx context.Context, input EntryInput, newClient port.AurumClientFactory) (*ValidatedInput, error) {
	selection, err := domain.ParseSelection(input.Selection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if domain.NormalizeHost(input.Host) == "" {
		return nil, fmt.Errorf("%w: empty host", ErrInvalidInput)
	}

	client := newClient(input.Host)
	connected, err := client.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotConnect, err)
	}
	if !connected {
		return nil, ErrCannotConnect
	}

	title := input.Title
	if title == "" {
		title = domain.AURUM_DEFAULT_TITLE
	}
	return &ValidatedInput{
		Title:     title,
		Selection: selection,
	}, nil
}

// FormErrors maps a validation error to the form errors shown to the user.
func FormErrors(err error) map[string]string {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return map[string]string{FORM_FIELD_BASE: FORM_ERROR_INVALID_INPUT}
	case errors.Is(err, ErrCannotConnect):
		return map[string]string{FORM_FIELD_BASE: FORM_ERROR_CANNOT_CONNECT}
	default:
		return map[string]string{FORM_FIELD_BASE: FORM_ERROR_UNKNOWN}
	}
}

// AlreadyConfigured reports whether an entry for host exists.
func AlreadyConfigured(entries []domain.ConfigEntry, host string) bool {
	host = domain.NormalizeHost(host)
	for _, e := range entries {
		if domain.NormalizeHost(e.Host) == host {
			return true
		}
	}
	return false
}
