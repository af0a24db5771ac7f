package views

import (
	"embed"
	"errors"
	"io"
	"io/fs"
	"text/template"
)

//go:embed templates
var viewsFS embed.FS

var indexTmpl *template.Template

// loadTemplatesFromFS parses the index template from dir in fsys. Tests use it
// to simulate broken template sets.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	tmpl, err := template.ParseFS(sub, "*.txt")
	if err != nil {
		return err
	}
	if tmpl.Lookup("index.txt") == nil {
		return errors.New("index.txt template not defined")
	}
	indexTmpl = tmpl
	return nil
}

// LoadTemplates loads the embedded templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

type Route struct {
	Path        string
	Description string
}

type IndexData struct {
	Routes []Route
}

// DefaultRoutes lists the public API routes in the order they are advertised.
func DefaultRoutes() []Route {
	return []Route{
		{Path: "/api/v1.0/precipitation", Description: "precipitation for the last year of data"},
		{Path: "/api/v1.0/stations", Description: "station identifiers"},
		{Path: "/api/v1.0/tobs", Description: "temperature observations of the most active station"},
		{Path: "/api/v1.0/<start>", Description: "TMIN, TMAX, TAVG from start (YYYY-MM-DD)"},
		{Path: "/api/v1.0/<start>/<end>", Description: "TMIN, TMAX, TAVG from start to end inclusive"},
	}
}

func RenderIndex(w io.Writer, data *IndexData) error {
	if indexTmpl == nil {
		return errors.New("index template not loaded: call views.LoadTemplates during startup")
	}
	return indexTmpl.ExecuteTemplate(w, "index.txt", data)
}
