package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/rosterinvites/internal/models"
	apperrors "github.com/charlesng35/rosterinvites/pkg/errors"
)

var (
	// ErrNilGrantExecutor signals an attempt to register a nil executor.
	ErrNilGrantExecutor = errors.New("grants: nil executor")
	// ErrDuplicateGrantKind indicates an executor is already registered for the kind.
	ErrDuplicateGrantKind = errors.New("grants: kind already registered")
)

// GrantRequest carries everything an executor needs to apply an accepted offer.
type GrantRequest struct {
	InvitationID string
	RecipientID  string
	Subject      models.SubjectRef
}

// GrantExecutor applies the side effect of an accepted invitation for one
// offer kind. Grant must be idempotent. Describe validates a subject at
// creation and returns a display snapshot of it.
type GrantExecutor interface {
	Describe(ctx context.Context, subject models.SubjectRef) (map[string]any, error)
	Grant(ctx context.Context, req GrantRequest) error
}

// GrantRegistry routes grant work to the executor registered for each kind.
type GrantRegistry struct {
	mu        sync.RWMutex
	executors map[models.InvitationKind]GrantExecutor
}

// NewGrantRegistry constructs an empty registry.
func NewGrantRegistry() *GrantRegistry {
	return &GrantRegistry{executors: make(map[models.InvitationKind]GrantExecutor)}
}

// Register binds an executor to an invitation kind.
func (r *GrantRegistry) Register(kind models.InvitationKind, executor GrantExecutor) error {
	if executor == nil {
		return ErrNilGrantExecutor
	}
	if !kind.Valid() {
		return fmt.Errorf("grants: unsupported kind %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[kind]; exists {
		return ErrDuplicateGrantKind
	}
	r.executors[kind] = executor
	return nil
}

// MustRegister wraps Register and panics on error. Intended for bootstrap.
func (r *GrantRegistry) MustRegister(kind models.InvitationKind, executor GrantExecutor) {
	if err := r.Register(kind, executor); err != nil {
		panic(err)
	}
}

// NewDefaultGrantRegistry registers the executors for every invitation kind.
func NewDefaultGrantRegistry(db *gorm.DB, clock func() time.Time) (*GrantRegistry, error) {
	teamGrant, err := NewTeamStaffGrant(db)
	if err != nil {
		return nil, err
	}
	trialGrant, err := NewTrialAttendanceGrant(db, clock)
	if err != nil {
		return nil, err
	}

	registry := NewGrantRegistry()
	registry.MustRegister(models.KindTeamRole, teamGrant)
	registry.MustRegister(models.KindTrial, trialGrant)
	return registry, nil
}

func (r *GrantRegistry) executor(kind models.InvitationKind) (GrantExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[kind]
	if !ok {
		return nil, apperrors.NewValidation(fmt.Sprintf("unsupported invitation kind %q", kind))
	}
	return executor, nil
}

// Describe validates the subject for the kind and returns its snapshot attributes.
func (r *GrantRegistry) Describe(ctx context.Context, kind models.InvitationKind, subject models.SubjectRef) (map[string]any, error) {
	executor, err := r.executor(kind)
	if err != nil {
		return nil, err
	}
	return executor.Describe(ensureContext(ctx), subject)
}

// Grant applies the accepted invitation's side effect.
func (r *GrantRegistry) Grant(ctx context.Context, inv *models.Invitation) error {
	executor, err := r.executor(inv.Kind)
	if err != nil {
		return err
	}
	return executor.Grant(ensureContext(ctx), GrantRequest{
		InvitationID: inv.ID,
		RecipientID:  inv.RecipientID,
		Subject:      inv.Subject(),
	})
}
