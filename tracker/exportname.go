package tracker

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/vsariola/trackplay"
)

// DefaultExportTemplate names the file after the song title, falling back to
// "untitled", with the extension of the export format (".wav" etc.).
const DefaultExportTemplate = `{{ .Title | default "untitled" | lower | replace " " "_" | trunc 64 }}{{ .Ext }}`

type exportNameData struct {
	Title   string
	Artist  string
	Tracker string
	Type    string
	Format  string
	Ext     string
}

// ExportFileName executes the file name template with the song metadata. An
// empty template means DefaultExportTemplate. Path separators in the result are
// replaced so the name always stays in the current directory.
func ExportFileName(tmplText string, meta trackplay.Metadata, format trackplay.ExportFormat) (string, error) {
	if tmplText == "" {
		tmplText = DefaultExportTemplate
	}
	tmpl, err := template.New("filename").Funcs(sprig.TxtFuncMap()).Parse(tmplText)
	if err != nil {
		return "", fmt.Errorf(`could not parse export file name template "%v": %v`, tmplText, err)
	}
	title := meta.Title
	// a title falling back to the module path is useless as a name
	if strings.ContainsAny(title, `/\`) {
		title = strings.TrimSuffix(filepath.Base(title), filepath.Ext(title))
	}
	data := exportNameData{
		Title:   strings.TrimSpace(title),
		Artist:  meta.Artist,
		Tracker: meta.Tracker,
		Type:    meta.Type,
		Format:  trackplay.FormatName(format),
		Ext:     trackplay.Extension(format),
	}
	var b bytes.Buffer
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf(`could not execute export file name template: %v`, err)
	}
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 32 {
			return -1
		}
		return r
	}, strings.TrimSpace(b.String()))
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("export file name template produced an empty name")
	}
	return name, nil
}
