// Package report renders stored articles into a standalone HTML page.
package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/crdatos/hemeroteca/app/store"
)

//go:embed data/report.html.tmpl
var page string

var pageTmpl = template.Must(template.New("report").
	Funcs(template.FuncMap{
		"paragraphs": paragraphs,
		"join":       strings.Join,
	}).
	Parse(page))

// Data is everything the page template needs.
type Data struct {
	Title    string
	Articles []store.Article
}

// Render writes the HTML page for the given articles.
func Render(w io.Writer, data Data) error {
	if err := pageTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("execute page template: %w", err)
	}
	return nil
}

func paragraphs(s string) []string {
	var result []string
	for _, p := range strings.Split(s, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}
