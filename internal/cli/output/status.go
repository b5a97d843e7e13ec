package output

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// SessionBadge renders a session status for text output.
func (r *Renderer) SessionBadge(s core.SessionStatus) string {
	return r.sessionStyle(s).Render(string(s))
}

// QueryBadge renders a query status for text output.
func (r *Renderer) QueryBadge(s core.QueryStatus) string {
	return r.queryStyle(s).Render(string(s))
}

func (r *Renderer) sessionStyle(s core.SessionStatus) lipgloss.Style {
	switch s {
	case core.SessionConnected:
		return r.styles.Success
	case core.SessionFailed:
		return r.styles.Error
	case core.SessionConnecting, core.SessionDisconnecting:
		return r.styles.Info
	}
	return r.styles.Muted
}

func (r *Renderer) queryStyle(s core.QueryStatus) lipgloss.Style {
	switch s {
	case core.QuerySucceeded:
		return r.styles.Success
	case core.QueryFailed:
		return r.styles.Error
	case core.QueryQueued, core.QueryRunning:
		return r.styles.Info
	case core.QueryCancelled:
		return r.styles.Warning
	}
	return r.styles.Muted
}
