// Package registry is the durable, name-keyed catalogue of database profiles.
//
// All mutations are serialized by one mutex. WithProfile holds the same
// mutex while a session claims a profile, so a profile can never be removed
// between being looked up and becoming the active session's profile.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/A-SunsetMkt-Forks/pg/internal/notifier"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// Guard reports the profile held by a non-Disconnected session.
type Guard interface {
	ActiveProfile() string
}

// ProfileInput is the data of a new profile.
type ProfileInput struct {
	Name        string `json:"name" validate:"required,max=128,profilename"`
	Description string `json:"description" validate:"max=1024"`
	Credentials []byte `json:"credentials" validate:"required,min=2"`
}

// Options configure a Registry.
type Options struct {
	Store  core.ProfileStore
	Logger *slog.Logger
	// ValidateCredentials, when set, vets credentials on create and edit.
	ValidateCredentials func([]byte) error
	// Notify, when set, is called after every mutation. It must not block.
	Notify func(notifier.Event)
}

// Registry implements profile CRUD over a core.ProfileStore.
type Registry struct {
	store     core.ProfileStore
	logger    *slog.Logger
	validate  *validator.Validate
	checkCred func([]byte) error
	notify    func(notifier.Event)
	now       func() time.Time

	mu    sync.Mutex
	guard Guard
}

var profileName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]*$`)

// New creates a Registry.
func New(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("profilename", func(fl validator.FieldLevel) bool {
		return profileName.MatchString(fl.Field().String())
	})
	return &Registry{
		store:     opts.Store,
		logger:    logger,
		validate:  v,
		checkCred: opts.ValidateCredentials,
		notify:    opts.Notify,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetGuard installs the session guard consulted by Remove.
func (r *Registry) SetGuard(g Guard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guard = g
}

func (r *Registry) activeLocked() string {
	if r.guard == nil {
		return ""
	}
	return r.guard.ActiveProfile()
}

func (r *Registry) changed() {
	if r.notify != nil {
		r.notify(notifier.Event{Topic: notifier.TopicProfiles})
	}
}

// Create persists a new profile. It fails with DuplicateProfile when the name
// is taken and InvalidProfile when the input does not validate.
func (r *Registry) Create(ctx context.Context, in ProfileInput) (*core.DatabaseProfile, error) {
	if err := r.check(in); err != nil {
		return nil, err
	}

	now := r.now()
	p := &core.DatabaseProfile{
		Name:        in.Name,
		Description: in.Description,
		Credentials: append([]byte(nil), in.Credentials...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.mu.Lock()
	err := r.store.InsertProfile(ctx, p)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	r.logger.Info("profile created", slog.String("profile", p.Name))
	r.changed()
	return p.Clone(), nil
}

// Edit replaces the description and/or credentials of a profile. The name is
// immutable.
func (r *Registry) Edit(ctx context.Context, name string, patch core.ProfilePatch) (*core.DatabaseProfile, error) {
	if patch.Credentials != nil {
		if err := r.checkCredentials(name, patch.Credentials); err != nil {
			return nil, err
		}
	}
	if patch.Description != nil && len(*patch.Description) > 1024 {
		return nil, core.NewError(core.KindInvalidProfile, name, "description exceeds 1024 bytes")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.store.GetProfile(ctx, name)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return p, nil
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Credentials != nil {
		p.Credentials = append([]byte(nil), patch.Credentials...)
	}
	p.UpdatedAt = r.now()
	if err := r.store.ReplaceProfile(ctx, p); err != nil {
		return nil, err
	}

	r.logger.Info("profile edited", slog.String("profile", name))
	r.changed()
	return p.Clone(), nil
}

// Remove deletes a profile. It fails with ProfileInUse while the profile
// belongs to a non-Disconnected session.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeLocked() == name {
		return inUse(name)
	}
	if err := r.store.DeleteProfile(ctx, name); err != nil {
		return err
	}

	r.logger.Info("profile removed", slog.String("profile", name))
	r.changed()
	return nil
}

// CheckRemove reports the error Remove would return now, without side effects.
func (r *Registry) CheckRemove(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.store.GetProfile(ctx, name); err != nil {
		return err
	}
	if r.activeLocked() == name {
		return inUse(name)
	}
	return nil
}

// List returns all profiles in insertion order.
func (r *Registry) List(ctx context.Context) ([]*core.DatabaseProfile, error) {
	return r.store.ListProfiles(ctx)
}

// Get returns one profile.
func (r *Registry) Get(ctx context.Context, name string) (*core.DatabaseProfile, error) {
	return r.store.GetProfile(ctx, name)
}

// WithProfile looks name up and runs fn while no mutation can happen.
// fn must not call back into the Registry.
func (r *Registry) WithProfile(ctx context.Context, name string, fn func(*core.DatabaseProfile) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.store.GetProfile(ctx, name)
	if err != nil {
		return err
	}
	return fn(p)
}

func inUse(name string) error {
	return core.NewError(core.KindProfileInUse, name, "profile is used by the active session; disconnect first")
}

func (r *Registry) check(in ProfileInput) error {
	if err := r.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return core.NewError(core.KindInvalidProfile, in.Name, "invalid fields: %s", strings.Join(fields, ", "))
		}
		return core.WrapError(core.KindInvalidProfile, in.Name, err, "invalid profile")
	}
	return r.checkCredentials(in.Name, in.Credentials)
}

func (r *Registry) checkCredentials(name string, blob []byte) error {
	if r.checkCred == nil {
		return nil
	}
	if err := r.checkCred(blob); err != nil {
		if core.KindOf(err) == core.KindInvalidProfile {
			var e *core.Error
			if errors.As(err, &e) && e.Subject == "" {
				return core.WrapError(core.KindInvalidProfile, name, e.Cause, e.Msg)
			}
			return err
		}
		return core.WrapError(core.KindInvalidProfile, name, err, "invalid credentials")
	}
	return nil
}
