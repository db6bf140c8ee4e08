package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"homewatch/identity"
	"homewatch/models"
	"homewatch/services"
	"homewatch/storage"
	"homewatch/utils"
)

var searchesCmd = &cobra.Command{
	Use:   "searches",
	Short: "Manage stored searches",
}

var searchesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create searches for a user from a YAML file",
	Long: `Create searches for a user from a YAML file.

Example file:
  searches:
    - name: Arlington condos
      notify_on_new: true
      criteria:
        max_price: 600000
        min_bedrooms: 2
        min_bathrooms: 1
        locations: ["Arlington VA", "22203"]`,
	Args: cobra.ExactArgs(1),
	RunE: runSearchesImport,
}

var (
	importUser  string
	importEmail string
)

func init() {
	rootCmd.AddCommand(searchesCmd)
	searchesCmd.AddCommand(searchesImportCmd)

	flags := searchesImportCmd.Flags()
	flags.StringVar(&importUser, "user", "", "external id of the owner (required)")
	flags.StringVar(&importEmail, "email", "", "alert address when the owner is new")
	_ = searchesImportCmd.MarkFlagRequired("user")
}

type searchFile struct {
	Searches []searchSpec `yaml:"searches" validate:"required,min=1,dive"`
}

type searchSpec struct {
	Name        string                `yaml:"name" validate:"required"`
	Active      *bool                 `yaml:"active"`
	NotifyOnNew *bool                 `yaml:"notify_on_new"`
	Criteria    models.SearchCriteria `yaml:"criteria"`
}

// parseSearchFile decodes and validates a search file. Locations are
// cleaned before validation; both flags default to true.
func parseSearchFile(data []byte, logger *utils.Logger) ([]*models.Search, error) {
	var f searchFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse search file: %w", err)
	}

	cleaner := services.NewCleaner(logger)
	for i := range f.Searches {
		cleaner.CleanCriteria(&f.Searches[i].Criteria)
	}
	if err := validator.New().Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("invalid search file: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("invalid search file: %w", err)
	}

	out := make([]*models.Search, 0, len(f.Searches))
	for _, spec := range f.Searches {
		out = append(out, &models.Search{
			Name:        spec.Name,
			Criteria:    spec.Criteria,
			IsActive:    spec.Active == nil || *spec.Active,
			NotifyOnNew: spec.NotifyOnNew == nil || *spec.NotifyOnNew,
		})
	}
	return out, nil
}

// resolveOwner finds the user for externalID. A new user gets email when
// given, otherwise a placeholder address.
func resolveOwner(ctx context.Context, store storage.UserStore, externalID, email, domain string, logger *utils.Logger) (*models.User, error) {
	if email != "" {
		_, err := store.FindUserByExternalID(ctx, externalID)
		if errors.Is(err, storage.ErrNotFound) {
			u := &models.User{ID: uuid.NewString(), ExternalID: externalID, Email: email}
			err := store.CreateUser(ctx, u)
			if err == nil {
				return u, nil
			}
			if !errors.Is(err, storage.ErrDuplicate) {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		}
		logger.Warn("User %s already exists, --email ignored", externalID)
	}
	return identity.NewResolver(store, domain, logger).Resolve(ctx, externalID)
}

// importSearches stores searches under owner.
func importSearches(ctx context.Context, store storage.Store, searches []*models.Search, owner *models.User, logger *utils.Logger) error {
	for _, s := range searches {
		s.UserID = owner.ID
		if err := store.CreateSearch(ctx, s); err != nil {
			return fmt.Errorf("create search %q: %w", s.Name, err)
		}
		logger.Info("Created search %s (%s) for %s", s.ID, s.Name, owner.ExternalID)
	}
	return nil
}

func runSearchesImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	searches, err := parseSearchFile(data, a.logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	owner, err := resolveOwner(ctx, a.store, importUser, importEmail, placeholderDomain(a.cfg.PlaceholderDomains), a.logger)
	if err != nil {
		return fmt.Errorf("resolve user %s: %w", importUser, err)
	}
	return importSearches(ctx, a.store, searches, owner, a.logger)
}
