package extractor

import (
	"testing"

	"homewatch/models"
)

const zillowBase = "https://www.zillow.com"

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"$550,000", 550000},
		{"Est. $480,000", 480000},
		{"$1,200.50", 1200.50},
		{"$725,000+", 725000},
		{"", 0},
		{"Contact agent", 0},
	}

	for _, tt := range tests {
		if got := ParsePrice(tt.raw); got != tt.want {
			t.Errorf("ParsePrice(%q) = %.2f; want %.2f", tt.raw, got, tt.want)
		}
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		full                     string
		street, city, state, zip string
	}{
		{"100 N Glebe Rd, Arlington, VA 22203", "100 N Glebe Rd", "Arlington", "VA", "22203"},
		{"22 Oak St, Arlington, VA 22201-4410", "22 Oak St", "Arlington", "VA", "22201-4410"},
		{"5 Elm Ave, Falls Church VA 22046", "5 Elm Ave", "Falls Church", "VA", "22046"},
		{"7 Pine Way, Silver Spring md 20910", "7 Pine Way", "Silver Spring", "md", "20910"},
		{"8 Birch Ln, Alexandria VA", "8 Birch Ln", "Alexandria", "VA", ""},
		{"Lot 4 Route 50", "Lot 4 Route 50", "", "", ""},
	}

	for _, tt := range tests {
		street, city, state, zip := ParseAddress(tt.full)
		if street != tt.street || city != tt.city || state != tt.state || zip != tt.zip {
			t.Errorf("ParseAddress(%q) = (%q, %q, %q, %q); want (%q, %q, %q, %q)",
				tt.full, street, city, state, zip, tt.street, tt.city, tt.state, tt.zip)
		}
	}
}

func TestInferPropertyType(t *testing.T) {
	tests := []struct {
		details string
		want    models.PropertyType
	}{
		{"3 bds 2 ba - House for sale", models.PropertyHouse},
		{"2 bds - Condo for sale", models.PropertyCondo},
		{"4 bds Townhouse for sale", models.PropertyTownhouse},
		{"Lot / Land for sale", models.PropertyUnknown},
		{"", models.PropertyUnknown},
	}

	for _, tt := range tests {
		if got := InferPropertyType(tt.details); got != tt.want {
			t.Errorf("InferPropertyType(%q) = %q; want %q", tt.details, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	raw := models.RawCandidate{
		Price:       "$550,000",
		FullAddress: "100 N Glebe Rd, Arlington, VA 22203",
		Beds:        "2",
		Baths:       "1.5",
		Sqft:        "1150",
		Details:     "2 bds 1.5 ba 1,150 sqft - Condo for sale",
		DetailURL:   "/homedetails/100-N-Glebe-Rd/111_zpid/",
		ImageURL:    "https://photos.example.net/111.jpg",
	}

	l, ok := Normalize(raw, zillowBase, "zillow")
	if !ok {
		t.Fatal("Normalize() rejected a complete candidate")
	}
	if l.URL != "https://www.zillow.com/homedetails/100-N-Glebe-Rd/111_zpid/" {
		t.Errorf("URL: got %q", l.URL)
	}
	if l.Price != 550000 || l.Bedrooms != 2 || l.Bathrooms != 1.5 {
		t.Errorf("numbers: got price=%v beds=%d baths=%v", l.Price, l.Bedrooms, l.Bathrooms)
	}
	if l.SquareFeet == nil || *l.SquareFeet != 1150 {
		t.Errorf("SquareFeet: got %v", l.SquareFeet)
	}
	if l.City != "Arlington" || l.State != "VA" || l.ZipCode != "22203" {
		t.Errorf("location: got %q %q %q", l.City, l.State, l.ZipCode)
	}
	if l.PropertyType != models.PropertyCondo {
		t.Errorf("PropertyType: got %q", l.PropertyType)
	}
	if l.Source != "zillow" || l.NotificationStatus != models.NotificationPending || l.IsNotified {
		t.Errorf("bookkeeping fields: %+v", l)
	}
}

func TestNormalizeRejectsIncomplete(t *testing.T) {
	tests := []models.RawCandidate{
		{FullAddress: "1 A St, Arlington, VA 22203", DetailURL: "/homedetails/1/"},
		{Price: "$1", DetailURL: "/homedetails/1/"},
		{Price: "$1", FullAddress: "1 A St, Arlington, VA 22203"},
	}
	for i, raw := range tests {
		if _, ok := Normalize(raw, zillowBase, "zillow"); ok {
			t.Errorf("case %d: expected rejection of %+v", i, raw)
		}
	}
}

func TestNormalizeSameURLDifferentText(t *testing.T) {
	a := models.RawCandidate{Price: "$550,000", FullAddress: "1 A St, Arlington, VA 22203", Beds: "2", Baths: "1", DetailURL: "/homedetails/1_zpid/"}
	b := models.RawCandidate{Price: "$545,000", FullAddress: "1 A St, Arlington, VA 22203", Beds: "3", Baths: "2", DetailURL: "https://www.zillow.com/homedetails/1_zpid/"}

	la, _ := Normalize(a, zillowBase, "zillow")
	lb, _ := Normalize(b, zillowBase, "zillow")
	if la.URL != lb.URL {
		t.Errorf("dedup keys differ: %q vs %q", la.URL, lb.URL)
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{zillowBase, "/homedetails/x/", "https://www.zillow.com/homedetails/x/"},
		{zillowBase, "https://other.example/a", "https://other.example/a"},
		{"", "/relative", "/relative"},
	}
	for _, tt := range tests {
		if got := ResolveURL(tt.base, tt.ref); got != tt.want {
			t.Errorf("ResolveURL(%q, %q) = %q; want %q", tt.base, tt.ref, got, tt.want)
		}
	}
}
