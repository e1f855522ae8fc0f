package controllers

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinkar-mx/clinkar-backend/api/middleware"
	"github.com/clinkar-mx/clinkar-backend/internal/escrow"
	"github.com/clinkar-mx/clinkar-backend/pkg/enums"
	pkgerrors "github.com/clinkar-mx/clinkar-backend/pkg/errors"
)

// actorFromContext resolves the authenticated caller seeded by the auth
// middleware.
func actorFromContext(ctx context.Context) (escrow.Actor, error) {
	raw := middleware.UserIDFromContext(ctx)
	if raw == "" {
		return escrow.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return escrow.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseActorRole(middleware.RoleFromContext(ctx))
	if err != nil {
		return escrow.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid actor role")
	}
	return escrow.Actor{UserID: userID, Role: role}, nil
}
