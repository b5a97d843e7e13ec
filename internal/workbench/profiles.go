package workbench

import (
	"context"
	"log/slog"
	"time"

	"github.com/A-SunsetMkt-Forks/pg/internal/registry"
	"github.com/A-SunsetMkt-Forks/pg/pkg/adapter"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// ProfileView is a profile as listed to the user. Credentials stay out.
type ProfileView struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Type        string    `json:"type" yaml:"type"`
	Active      bool      `json:"active" yaml:"active"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

func (w *Workbench) view(p *core.DatabaseProfile, active string) ProfileView {
	v := ProfileView{
		Name:        p.Name,
		Description: p.Description,
		Active:      p.Name == active,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if cfg, err := adapter.DecodeCredentials(p.Credentials); err == nil {
		v.Type = cfg.Type
	}
	return v
}

// ListProfiles returns every profile, marking the one held by the session.
func (w *Workbench) ListProfiles(ctx context.Context) ([]ProfileView, error) {
	ps, err := w.profiles.List(ctx)
	if err != nil {
		return nil, err
	}
	active := w.session.ActiveProfile()
	out := make([]ProfileView, len(ps))
	for i, p := range ps {
		out[i] = w.view(p, active)
	}
	return out, nil
}

// GetProfile returns one profile, credentials included.
func (w *Workbench) GetProfile(ctx context.Context, name string) (*core.DatabaseProfile, error) {
	return w.profiles.Get(ctx, name)
}

// CreateProfile registers a new profile.
func (w *Workbench) CreateProfile(ctx context.Context, in registry.ProfileInput) (ProfileView, error) {
	p, err := w.profiles.Create(ctx, in)
	if err != nil {
		return ProfileView{}, err
	}
	return w.view(p, w.session.ActiveProfile()), nil
}

// EditProfile patches a profile. Edits to the active profile take effect on
// the next connect.
func (w *Workbench) EditProfile(ctx context.Context, name string, patch core.ProfilePatch) (ProfileView, error) {
	p, err := w.profiles.Edit(ctx, name, patch)
	if err != nil {
		return ProfileView{}, err
	}
	return w.view(p, w.session.ActiveProfile()), nil
}

// RemoveOptions tune RemoveProfile.
type RemoveOptions struct {
	// Force disconnects the session first when it holds the profile.
	Force bool
}

// RemoveProfile deletes a profile. Without Force it fails with ProfileInUse
// while the session holds the profile.
func (w *Workbench) RemoveProfile(ctx context.Context, name string, opts RemoveOptions) error {
	if opts.Force && w.session.ActiveProfile() == name {
		w.logger.Info("disconnecting to remove active profile", slog.String("profile", name))
		if err := w.session.Disconnect(ctx); err != nil {
			return err
		}
	}
	return w.profiles.Remove(ctx, name)
}

// CheckRemove reports whether RemoveProfile would succeed now.
func (w *Workbench) CheckRemove(ctx context.Context, name string) error {
	return w.profiles.CheckRemove(ctx, name)
}
