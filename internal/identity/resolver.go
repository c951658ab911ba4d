// Package identity deduplicates contacts by hashed email and phone.
package identity

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lixohealthcareequipment/growth-ops/internal/model"
)

// Store is the persistence the resolver needs.
type Store interface {
	FindIdentity(ctx context.Context, emailHash, phoneHash string) (*model.Identity, error)
	InsertIdentity(ctx context.Context, ident model.Identity) error
	PatchIdentity(ctx context.Context, id string, patch model.IdentityPatch) error
}

// Resolver maps contact details to a stable identity.
type Resolver struct {
	store  Store
	locker Locker
	now    func() time.Time
}

// NewResolver creates a Resolver. A nil locker disables locking.
func NewResolver(store Store, locker Locker) *Resolver {
	if locker == nil {
		locker = NoopLocker{}
	}
	return &Resolver{store: store, locker: locker, now: time.Now}
}

// Resolve finds or creates the identity for email and phone. Store failures
// are logged and never surface; the result is always usable.
func (r *Resolver) Resolve(ctx context.Context, email, phone string) *model.Identity {
	now := r.now().UTC()
	emailHash := HashEmail(email)
	phoneHash := HashPhone(phone)

	id := emailHash
	if id == "" {
		id = phoneHash
	}
	if id == "" {
		id = anonPrefix + strconv.FormatInt(now.UnixMilli(), 10)
	}

	log := zap.L().With(
		zap.String("identity_id", id),
		zap.Bool("email_hash", emailHash != ""),
		zap.Bool("phone_hash", phoneHash != ""),
	)

	fresh := &model.Identity{
		ID:        id,
		Email:     model.Ptr(email),
		Phone:     model.Ptr(phone),
		EmailHash: model.Ptr(emailHash),
		PhoneHash: model.Ptr(phoneHash),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if emailHash == "" && phoneHash == "" {
		r.insert(ctx, log, fresh)
		return fresh
	}

	unlock, err := r.locker.Lock(ctx, id)
	if err != nil {
		log.Warn("identity: lock unavailable, resolving unlocked", zap.Error(err))
	} else {
		defer unlock()
	}

	existing, err := r.store.FindIdentity(ctx, emailHash, phoneHash)
	if err != nil {
		log.Error("identity: lookup failed, treating as new", zap.Error(err))
		existing = nil
	}

	if existing == nil {
		r.insert(ctx, log, fresh)
		return fresh
	}

	patch := model.IdentityPatch{
		Email:     model.Ptr(email),
		Phone:     model.Ptr(phone),
		EmailHash: model.Ptr(emailHash),
		PhoneHash: model.Ptr(phoneHash),
		UpdatedAt: now,
	}
	if err := r.store.PatchIdentity(ctx, existing.ID, patch); err != nil {
		log.Error("identity: patch failed", zap.String("existing_id", existing.ID), zap.Error(err))
	}

	resolved := &model.Identity{
		ID:               existing.ID,
		Email:            fresh.Email,
		Phone:            fresh.Phone,
		EmailHash:        fresh.EmailHash,
		PhoneHash:        fresh.PhoneHash,
		UTMSource:        existing.UTMSource,
		UTMMedium:        existing.UTMMedium,
		UTMCampaign:      existing.UTMCampaign,
		FirstTouchSource: existing.FirstTouchSource,
		CreatedAt:        existing.CreatedAt,
		UpdatedAt:        now,
	}
	log.Info("identity: matched existing", zap.String("existing_id", existing.ID))
	return resolved
}

func (r *Resolver) insert(ctx context.Context, log *zap.Logger, ident *model.Identity) {
	if err := r.store.InsertIdentity(ctx, *ident); err != nil {
		log.Error("identity: insert failed", zap.Error(err))
		return
	}
	log.Info("identity: created")
}
