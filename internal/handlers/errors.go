package handlers

import (
	stdErrors "errors"
	"strings"

	iauth "github.com/charlesng35/sessiongate/internal/auth"
	appErrors "github.com/charlesng35/sessiongate/pkg/errors"
)

// sessionError maps session manager failures onto API errors.
func sessionError(err error) *appErrors.AppError {
	switch {
	case err == nil:
		return nil
	case stdErrors.Is(err, iauth.ErrDuplicateSessionID):
		return appErrors.ErrSessionConflict.WithInternal(err)
	case stdErrors.Is(err, iauth.ErrStoreUnavailable):
		return appErrors.ErrSessionStoreUnavailable.WithInternal(err)
	case stdErrors.Is(err, iauth.ErrInvalidSession), stdErrors.Is(err, iauth.ErrInvalidExtension):
		message := strings.TrimPrefix(err.Error(), "session: ")
		return appErrors.NewBadRequest(message).WithInternal(err)
	case stdErrors.Is(err, iauth.ErrSessionNotFound):
		return appErrors.ErrSessionNotFound.WithInternal(err)
	default:
		return appErrors.FromError(err)
	}
}
