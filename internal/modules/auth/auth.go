package auth

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/dhanjayarya01/cinemasync-backend/internal/models"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/realtime"
	jwtpkg "github.com/dhanjayarya01/cinemasync-backend/internal/pkg/jwt"
)

// Verifier resolves bearer tokens issued by the account service to user
// records. It serves both the HTTP middleware and socket authentication.
type Verifier struct {
	db *gorm.DB
}

func NewVerifier(db *gorm.DB) *Verifier { return &Verifier{db: db} }

var _ realtime.Verifier = (*Verifier)(nil)

// Verify rejects bad signatures, expired tokens and unknown users with an
// error wrapping realtime.ErrInvalidToken. Storage failures are returned as is.
func (v *Verifier) Verify(ctx context.Context, token string) (*models.UserModel, error) {
	claims, err := jwtpkg.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", realtime.ErrInvalidToken, err)
	}

	var user models.UserModel
	err = v.db.WithContext(ctx).First(&user, "id = ?", claims.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: unknown user", realtime.ErrInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}
