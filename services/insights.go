package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"homewatch/models"
	"homewatch/utils"
)

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(listings []*models.Listing) *models.ListingReport {
	report := &models.ListingReport{
		ListingsByLocation: make(map[string]int),
		ListingsByType:     make(map[models.PropertyType]int),
		Notifications:      make(map[models.NotificationStatus]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	var prices []float64
	var sized []*models.Listing

	for _, l := range listings {
		if l.Price > 0 {
			prices = append(prices, l.Price)
			if report.MostExpensive == nil || l.Price > report.MostExpensive.Price {
				report.MostExpensive = l
			}
			if l.SquareFeet != nil && *l.SquareFeet > 0 {
				sized = append(sized, l)
			}
		}
		if l.City != "" {
			report.ListingsByLocation[l.CityState()]++
		}
		pt := l.PropertyType
		if pt == "" {
			pt = models.PropertyUnknown
		}
		report.ListingsByType[pt]++
		if l.NotificationStatus != "" {
			report.Notifications[l.NotificationStatus]++
		}
	}

	// Price stats (only listings with price > 0)
	if len(prices) > 0 {
		sort.Float64s(prices)
		var total float64
		for _, p := range prices {
			total += p
		}
		report.MinPrice = round2(prices[0])
		report.MaxPrice = round2(prices[len(prices)-1])
		report.AveragePrice = round2(total / float64(len(prices)))
		mid := len(prices) / 2
		if len(prices)%2 == 0 {
			report.MedianPrice = round2((prices[mid-1] + prices[mid]) / 2)
		} else {
			report.MedianPrice = round2(prices[mid])
		}
	}

	// Top 5 by price per square foot
	sort.SliceStable(sized, func(i, j int) bool {
		return pricePerSqft(sized[i]) < pricePerSqft(sized[j])
	})
	if len(sized) > 5 {
		report.BestValue = sized[:5]
	} else {
		report.BestValue = sized
	}

	s.logger.Debug("[insights] %d listings, %d priced, %d sized", len(listings), len(prices), len(sized))
	return report
}

func (s *InsightService) Print(w io.Writer, r *models.ListingReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🏠 LISTING REPORT\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total listings stored  : \033[1m%d\033[0m\n", r.TotalListings)
	for _, st := range []models.NotificationStatus{models.NotificationSent, models.NotificationFailed, models.NotificationPending} {
		if n := r.Notifications[st]; n > 0 {
			fmt.Fprintf(w, "  Alerts %-16s: \033[1m%d\033[0m\n", st, n)
		}
	}
	fmt.Fprintln(w)

	// Price Stats
	fmt.Fprintf(w, "\033[1;33m  Price Statistics\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.AveragePrice > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m$%s\033[0m\n", humanize.CommafWithDigits(r.AveragePrice, 2))
		fmt.Fprintf(w, "  Median price  : \033[1;32m$%s\033[0m\n", humanize.CommafWithDigits(r.MedianPrice, 2))
		fmt.Fprintf(w, "  Minimum price : \033[1;32m$%s\033[0m\n", humanize.CommafWithDigits(r.MinPrice, 2))
		fmt.Fprintf(w, "  Maximum price : \033[1;32m$%s\033[0m\n", humanize.CommafWithDigits(r.MaxPrice, 2))
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	// Most Expensive
	if r.MostExpensive != nil {
		fmt.Fprintf(w, "\033[1;33m  Most Expensive Listing\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.MostExpensive.Address, 50))
		fmt.Fprintf(w, "  Location : %s\n", r.MostExpensive.CityStateZip())
		fmt.Fprintf(w, "  Price    : \033[1;31m$%s\033[0m\n", humanize.Commaf(r.MostExpensive.Price))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Best Value (price per sqft)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.BestValue) == 0 {
		fmt.Fprintf(w, "  No listings with size data\n")
	} else {
		for i, l := range r.BestValue {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %-40s \033[1;32m$%.0f/sqft\033[0m\n",
				i+1, truncate(l.Address, 38), pricePerSqft(l))
		}
	}
	fmt.Fprintln(w)

	// Listings by Location
	fmt.Fprintf(w, "\033[1;33m  Listings by Location\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ListingsByLocation) == 0 {
		fmt.Fprintf(w, "  No location data\n")
	} else {
		type locCount struct {
			loc   string
			count int
		}
		var locs []locCount
		for loc, cnt := range r.ListingsByLocation {
			locs = append(locs, locCount{loc, cnt})
		}
		sort.Slice(locs, func(i, j int) bool {
			if locs[i].count != locs[j].count {
				return locs[i].count > locs[j].count
			}
			return locs[i].loc < locs[j].loc
		})
		for _, lc := range locs {
			bar := strings.Repeat("█", lc.count)
			fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(lc.loc, 28), bar, lc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func pricePerSqft(l *models.Listing) float64 {
	return l.Price / float64(*l.SquareFeet)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
