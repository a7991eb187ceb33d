package service

import (
	"errors"

	"github.com/nexushost/portal/internal/apperr"
	"github.com/nexushost/portal/internal/client"
	"github.com/nexushost/portal/internal/repository"
)

// notFound maps a repository miss onto a 404 for what, passing other errors
// through.
func notFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return err
}

// upstream wraps a client error so it surfaces as 502.
func upstream(err error, msg string) error {
	if err == nil {
		return nil
	}
	var apiErr *client.APIError
	var te *client.TransportError
	if errors.As(err, &apiErr) || errors.As(err, &te) {
		return apperr.Upstream(msg, err)
	}
	return err
}
