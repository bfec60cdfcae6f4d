package report

import (
	"strings"
	"testing"
	"time"

	"github.com/crdatos/hemeroteca/app/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	data := Data{
		Title: "Stories for 2024-05-25",
		Articles: []store.Article{
			{
				Title:       "Gobierno anuncia plan",
				Subtitle:    "Obras iniciarán pronto",
				Body:        "Primer párrafo.\n\nSegundo párrafo.",
				Author:      "María Rodríguez",
				AuthorEmail: "maria@crhoy.com",
				Tags:        []string{"Gobierno", "Infraestructura"},
				PublishedAt: time.Date(2024, 5, 25, 16, 30, 0, 0, time.UTC),
				URL:         "https://www.crhoy.com/a1/",
				Domain:      "www.crhoy.com",
				Bias:        "Neutral",
			},
			{
				Title:       "Nota sin clasificar",
				Body:        "Único párrafo.",
				PublishedAt: time.Date(2024, 5, 25, 10, 0, 0, 0, time.UTC),
				URL:         "https://www.diarioextra.com/a2/",
				Domain:      "www.diarioextra.com",
			},
		},
	}

	sb := &strings.Builder{}
	require.NoError(t, Render(sb, data))
	page := sb.String()

	assert.Contains(t, page, "<title>Stories for 2024-05-25</title>")
	assert.Contains(t, page, "<h2>Gobierno anuncia plan</h2>")
	assert.Contains(t, page, "<h3>Obras iniciarán pronto</h3>")
	assert.Contains(t, page, "<p>Primer párrafo.</p>")
	assert.Contains(t, page, "<p>Segundo párrafo.</p>")
	assert.Contains(t, page, "Gobierno, Infraestructura")
	assert.Contains(t, page, `<p class="bias Neutral"><strong>Bias:</strong> Neutral</p>`)
	assert.Contains(t, page, `<a href="https://www.crhoy.com/a1/" target="_blank">Leer en www.crhoy.com</a>`)

	// second article carries no bias verdict
	assert.Contains(t, page, "<h2>Nota sin clasificar</h2>")
	assert.Equal(t, 1, strings.Count(page, "Bias:"))
}

func TestRender_escapesMarkup(t *testing.T) {
	data := Data{
		Title: "Stories",
		Articles: []store.Article{{
			Title: "Titular con <script>alert(1)</script>",
			Body:  "Cuerpo.",
			URL:   "https://www.crhoy.com/a1/",
		}},
	}

	sb := &strings.Builder{}
	require.NoError(t, Render(sb, data))

	assert.NotContains(t, sb.String(), "<script>alert(1)</script>")
	assert.Contains(t, sb.String(), "&lt;script&gt;")
}
