package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dhanjayarya01/cinemasync-backend/internal/models"
)

// Authenticate verifies token and binds the resulting identity to conn. A
// connection that was bound to another identity is detached from it first.
func (s *Service) Authenticate(ctx context.Context, conn *Connection, token string) (*models.UserModel, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	user, err := s.verifier.Verify(ctx, token)
	if err != nil {
		if !errors.Is(err, ErrInvalidToken) {
			err = fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return nil, err
	}

	if prev := conn.UserID(); prev != "" && prev != user.ID {
		s.release(ctx, conn, prev)
	}

	unlock := s.locks.Lock(user.ID)
	defer unlock()

	conn.bindUser(user)
	wasOnline := s.registry.Online(user.ID)
	s.registry.Bind(user.ID, conn)
	if !wasOnline {
		if err := s.users.SetOnline(ctx, user.ID, true, s.now()); err != nil {
			s.logger.Warn("mark user online failed", zap.String("user", user.ID), zap.Error(err))
		}
	}
	user.IsOnline = true

	s.emit(conn, OutAuthenticated, AuthenticatedPayload{User: NewUserView(user)})
	return user, nil
}
