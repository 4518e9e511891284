package registry

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kiranshivaraju/webgenie/pkg/models"
	"github.com/pelletier/go-toml/v2"
)

type catalogFile struct {
	Algorithms []models.Algorithm `toml:"algorithm"`
}

// LoadCatalog registers every [[algorithm]] table from a TOML file on top of
// the current entries. Example:
//
//	[[algorithm]]
//	name = "genie3"
//	image = "registry.local/genie3:1.2"
//
//	[algorithm.parameters.n_trees]
//	type = "integer"
//	default = 500
//	min = 1
func (r *Registry) LoadCatalog(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read algorithm catalog: %w", err)
	}
	return r.LoadCatalogBytes(data)
}

func (r *Registry) LoadCatalogBytes(data []byte) error {
	var cat catalogFile
	if err := toml.Unmarshal(data, &cat); err != nil {
		return fmt.Errorf("parse algorithm catalog: %w", err)
	}
	for _, a := range cat.Algorithms {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	slog.Info("algorithm catalog loaded", "entries", len(cat.Algorithms))
	return nil
}
