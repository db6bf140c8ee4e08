package extractor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile lists, per field, the selectors tried in order against a
// results page. Operators can override it from a YAML file when the
// source markup changes.
type Profile struct {
	// WaitFor is tried in order by the content wait: the first entry gets
	// the primary timeout, the rest the fallback timeout.
	WaitFor []string `yaml:"wait_for"`

	ListContainers []string `yaml:"list_containers"`
	ListItem       string   `yaml:"list_item"`
	Items          []string `yaml:"items"`

	Price       []string `yaml:"price"`
	Address     []string `yaml:"address"`
	DetailItems []string `yaml:"detail_items"`
	Details     []string `yaml:"details"`
	Link        []string `yaml:"link"`
	Image       []string `yaml:"image"`
	ImageAttrs  []string `yaml:"image_attrs"`
}

// DefaultProfile returns the selectors known to work against the Zillow
// search results page.
func DefaultProfile() Profile {
	return Profile{
		WaitFor: []string{
			`article[data-test="property-card"]`,
			`[data-test="property-card"]`,
		},
		ListContainers: []string{
			"ul.photo-cards",
			".List-c11n-8-109-3__sc-1smrmqp-0",
			".StyledSearchListWrapper-srp-8-109-3__sc-1ieen0c-0",
		},
		ListItem: "li",
		Items: []string{
			`article[data-test="property-card"]`,
			`[data-test="property-card"]`,
			".property-card",
			".list-card",
		},
		Price: []string{
			`[data-test="property-card-price"]`,
			".PropertyCardWrapper__StyledPriceLine-srp-8-109-3__sc-16e8gqd-1",
			`span[data-test="property-card-price"]`,
		},
		Address: []string{
			"address",
			`[data-test="property-card-addr"]`,
			`a[data-test="property-card-link"] address`,
		},
		DetailItems: []string{"ul li"},
		Details:     []string{`[data-test="property-card-details"]`},
		Link: []string{
			`a[href*="/homedetails/"]`,
			`a[data-test="property-card-link"]`,
			"a.property-card-link",
		},
		Image: []string{
			"picture img",
			"img",
			`[data-test="property-image"]`,
		},
		ImageAttrs: []string{"src", "data-src"},
	}
}

// LoadProfile reads a YAML profile. Fields left empty in the file keep
// their default selectors.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("profile: read %q: %w", path, err)
	}

	var override Profile
	if err := yaml.Unmarshal(data, &override); err != nil {
		return p, fmt.Errorf("profile: parse %q: %w", path, err)
	}

	overlay(&p.WaitFor, override.WaitFor)
	overlay(&p.ListContainers, override.ListContainers)
	overlay(&p.Items, override.Items)
	overlay(&p.Price, override.Price)
	overlay(&p.Address, override.Address)
	overlay(&p.DetailItems, override.DetailItems)
	overlay(&p.Details, override.Details)
	overlay(&p.Link, override.Link)
	overlay(&p.Image, override.Image)
	overlay(&p.ImageAttrs, override.ImageAttrs)
	if override.ListItem != "" {
		p.ListItem = override.ListItem
	}
	return p, nil
}

func overlay(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}
