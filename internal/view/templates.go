package view

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/launchpad-portal/launchpad/internal/shared"
	"github.com/launchpad-portal/launchpad/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Identity    *shared.Identity
	CurrentPath string
	Data        any
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	tpl, err := template.New("root").ParseFS(web.Templates, "templates/layouts/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

// Pages serves templates for the browser flows, embedding the session's CSRF token.
type Pages struct {
	Engine   *Engine
	Sessions *shared.SessionManager
	CSRF     *shared.CSRFManager
	Logger   *slog.Logger
}

// Serve returns a handler rendering the template name.
func (p *Pages) Serve(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := TemplateData{Title: title, CurrentPath: r.URL.Path}
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			token, changed, err := p.CSRF.EnsureToken(r.Context(), sess)
			if err == nil && changed {
				_, err = p.Sessions.Set(r.Context(), sess)
			}
			if err != nil {
				p.Logger.Error("prepare csrf token", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			identity := sess.Identity
			data.CSRFToken = token
			data.Identity = &identity
		}
		if err := p.Engine.Render(w, name, data); err != nil {
			p.Logger.Error("render page", slog.String("template", name), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}
