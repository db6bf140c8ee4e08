package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy pulls one value out of a card. It returns "" when it misses.
type Strategy func(*goquery.Selection) string

// Cascade is an ordered list of strategies for one field. The first
// strategy yielding a non-empty value wins.
type Cascade []Strategy

// First runs the cascade against s.
func (c Cascade) First(s *goquery.Selection) string {
	for _, strategy := range c {
		if v := strategy(s); v != "" {
			return v
		}
	}
	return ""
}

// Text returns the trimmed text of the first element matching selector.
func Text(selector string) Strategy {
	return func(s *goquery.Selection) string {
		return cleanText(s.Find(selector).First().Text())
	}
}

// Attr returns the first non-empty attribute among attrs on the first
// element matching selector.
func Attr(selector string, attrs ...string) Strategy {
	return func(s *goquery.Selection) string {
		el := s.Find(selector).First()
		if el.Length() == 0 {
			return ""
		}
		for _, attr := range attrs {
			if v := strings.TrimSpace(el.AttrOr(attr, "")); v != "" {
				return v
			}
		}
		return ""
	}
}

// TextCascade builds a cascade of Text strategies.
func TextCascade(selectors []string) Cascade {
	c := make(Cascade, 0, len(selectors))
	for _, sel := range selectors {
		c = append(c, Text(sel))
	}
	return c
}

// AttrCascade builds a cascade of Attr strategies sharing one attribute list.
func AttrCascade(selectors []string, attrs ...string) Cascade {
	c := make(Cascade, 0, len(selectors))
	for _, sel := range selectors {
		c = append(c, Attr(sel, attrs...))
	}
	return c
}

// cleanText strips leading/trailing whitespace and collapses internal whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
