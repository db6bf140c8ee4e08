package commands

import (
	"os"

	"github.com/spf13/cobra"

	"homewatch/models"
	"homewatch/services"
	"homewatch/storage"
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Inspect stored listings",
}

var listingsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print a report of a search's listings and optionally write them to CSV",
	Args:  cobra.NoArgs,
	RunE:  runListingsExport,
}

var (
	exportSearch string
	exportCSV    string
)

func init() {
	rootCmd.AddCommand(listingsCmd)
	listingsCmd.AddCommand(listingsExportCmd)

	flags := listingsExportCmd.Flags()
	flags.StringVar(&exportSearch, "search", "", "search id (required)")
	flags.StringVar(&exportCSV, "csv", "", "write listings to this CSV file")
	_ = listingsExportCmd.MarkFlagRequired("search")
}

func runListingsExport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	listings, err := a.store.ListingsBySearch(cmd.Context(), exportSearch)
	if err != nil {
		return err
	}
	a.logger.Info("Search %s has %d stored listings", exportSearch, len(listings))

	if exportCSV != "" {
		csvWriter, err := storage.NewCSVWriter(exportCSV)
		if err != nil {
			a.logger.Error("Failed to create CSV writer: %v", err)
			return err
		}
		if err := writeListings(csvWriter, listings); err != nil {
			a.logger.Error("CSV write failed: %v", err)
			return err
		}
		a.logger.Info("Listings saved to %s", exportCSV)
	}

	insights := services.NewInsightService(a.logger)
	insights.Print(os.Stdout, insights.Generate(listings))
	return nil
}

// writeListings writes listings and closes w.
func writeListings(w storage.ListingWriter, listings []*models.Listing) error {
	if err := w.Write(listings); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
