package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"

	"github.com/dustin/go-humanize"

	"homewatch/models"
)

var alertTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>New Property Alert</h2>
  {{if .ImageURL}}<img src="{{.ImageURL}}" alt="Property image" style="max-width: 100%; border-radius: 6px;">{{end}}
  <h3>{{.Address}}</h3>
  <p>{{.Location}}</p>
  <p style="font-size: 20px; font-weight: bold;">{{.Price}}</p>
  <p>{{.Bedrooms}} bd | {{.Bathrooms}} ba{{if .SquareFeet}} | {{.SquareFeet}} sqft{{end}}</p>
  <p><a href="{{.URL}}" style="background: #006aff; color: #fff; padding: 10px 16px; text-decoration: none; border-radius: 4px;">View Property</a></p>
</body>
</html>
`))

type alertView struct {
	Address    string
	Location   string
	Price      string
	Bedrooms   int
	Bathrooms  string
	SquareFeet string
	ImageURL   string
	URL        string
}

// Subject returns the alert subject line for l.
func Subject(l *models.Listing) string {
	return fmt.Sprintf("New Property Alert: %s, %s", l.Address, l.City)
}

// RenderBody renders the HTML alert for l.
func RenderBody(l *models.Listing) (string, error) {
	view := alertView{
		Address:   l.Address,
		Location:  l.CityStateZip(),
		Price:     "$" + humanize.Comma(int64(l.Price)),
		Bedrooms:  l.Bedrooms,
		Bathrooms: strconv.FormatFloat(l.Bathrooms, 'f', -1, 64),
		ImageURL:  l.ImageURL,
		URL:       l.URL,
	}
	if l.SquareFeet != nil {
		view.SquareFeet = humanize.Comma(int64(*l.SquareFeet))
	}

	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render alert: %w", err)
	}
	return buf.String(), nil
}
