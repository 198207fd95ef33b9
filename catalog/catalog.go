/*
Package catalog converts package definitions into studio.Package templates.

PURPOSE:
  The studio's catalog (how many sessions for what price, valid how long)
  lives in a YAML or JSON file next to the config. The factory parses and
  validates the file and turns each entry into a studio.PackageInput; Seed
  writes the ones the database does not have yet.

FILE SCHEMA (YAML):
  packages:
    - name: Ten Pack
      description: Ten personal training sessions
      price: "1000.00"
      sessions: 10
      validity_days: 90

  The same shape is accepted as JSON. Price is a decimal string so no
  float rounding ever reaches the ledger.

MATCHING:
  A definition matches an existing package when their slugs are equal.
  Seeding never updates or deletes packages that already exist.

USAGE:
  f := catalog.NewFactory()
  defs, err := f.Load("catalog.yaml")
  n, err := catalog.Seed(ctx, svc, defs)

SEE ALSO:
  - studio/packages.go: Package type and catalog operations
*/
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/warp/studio-engine/studio"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// SCHEMA TYPES
// =============================================================================

// PackageDef is the file representation of one catalog package.
type PackageDef struct {
	Name         string `json:"name" yaml:"name" validate:"required,max=120"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty" validate:"max=500"`
	Price        string `json:"price" yaml:"price" validate:"required,numeric"`
	Sessions     int    `json:"sessions" yaml:"sessions" validate:"required,min=1,max=500"`
	ValidityDays int    `json:"validity_days" yaml:"validity_days" validate:"required,min=1,max=3650"`
	Active       *bool  `json:"active,omitempty" yaml:"active,omitempty"`
}

// File is the top-level document.
type File struct {
	Packages []PackageDef `json:"packages" yaml:"packages" validate:"dive"`
}

// Format names a file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf picks the format from a file extension. Unknown extensions are YAML,
// which also accepts JSON documents.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// =============================================================================
// FACTORY
// =============================================================================

// Factory parses and validates catalog definitions.
type Factory struct {
	validate *validator.Validate
}

func NewFactory() *Factory {
	return &Factory{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Load reads and parses a catalog file.
func (f *Factory) Load(path string) ([]PackageDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return f.Parse(data, FormatOf(path))
}

// Parse decodes and validates a catalog document.
func (f *Factory) Parse(data []byte, format Format) ([]PackageDef, error) {
	var doc File
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", format, err)
	}

	seen := make(map[string]bool)
	for i, d := range doc.Packages {
		if err := f.Validate(d); err != nil {
			return nil, fmt.Errorf("packages[%d]: %w", i, err)
		}
		key := slug.Make(d.Name)
		if seen[key] {
			return nil, fmt.Errorf("packages[%d]: duplicate package %q", i, d.Name)
		}
		seen[key] = true
	}
	return doc.Packages, nil
}

// Validate checks one definition.
func (f *Factory) Validate(d PackageDef) error {
	if err := f.validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed on %s: %w", strings.ToLower(fe.Field()), fe.Tag(), studio.ErrValidation)
		}
		return err
	}
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return fmt.Errorf("price %q: %w", d.Price, studio.ErrValidation)
	}
	if price.IsNegative() {
		return fmt.Errorf("price must not be negative: %w", studio.ErrValidation)
	}
	return nil
}

// Input converts a validated definition into the service input.
func (d PackageDef) Input() (studio.PackageInput, error) {
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return studio.PackageInput{}, fmt.Errorf("price %q: %w", d.Price, studio.ErrValidation)
	}
	return studio.PackageInput{
		Name:             d.Name,
		Description:      d.Description,
		Price:            price,
		SessionsIncluded: d.Sessions,
		ValidityDays:     d.ValidityDays,
		Active:           d.Active,
	}, nil
}

// ToDef converts a stored package back to its file form.
func ToDef(p studio.Package) PackageDef {
	active := p.Active
	return PackageDef{
		Name:         p.Name,
		Description:  p.Description,
		Price:        p.Price.StringFixed(2),
		Sessions:     p.SessionsIncluded,
		ValidityDays: p.ValidityDays,
		Active:       &active,
	}
}

// Marshal renders definitions as a catalog document.
func Marshal(defs []PackageDef, format Format) ([]byte, error) {
	doc := File{Packages: defs}
	if format == FormatJSON {
		return json.MarshalIndent(doc, "", "  ")
	}
	return yaml.Marshal(doc)
}

// =============================================================================
// SEEDING
// =============================================================================

// Catalog is the part of the studio service seeding needs.
type Catalog interface {
	ListPackages(ctx context.Context, activeOnly bool) ([]studio.Package, error)
	CreatePackage(ctx context.Context, in studio.PackageInput) (studio.Package, error)
}

// Seed creates every definition whose slug is not in the catalog yet and
// returns how many were created. ctx must carry a principal allowed to
// manage the catalog.
func Seed(ctx context.Context, c Catalog, defs []PackageDef) (int, error) {
	existing, err := c.ListPackages(ctx, false)
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(existing))
	for _, p := range existing {
		have[p.Slug] = true
	}

	created := 0
	for _, d := range defs {
		if have[slug.Make(d.Name)] {
			continue
		}
		in, err := d.Input()
		if err != nil {
			return created, err
		}
		if _, err := c.CreatePackage(ctx, in); err != nil {
			return created, fmt.Errorf("seed package %q: %w", d.Name, err)
		}
		have[slug.Make(d.Name)] = true
		created++
	}
	return created, nil
}
