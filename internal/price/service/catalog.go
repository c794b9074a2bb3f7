package service

import (
	"fmt"
	"os"
	"slices"
	"strings"

	pricedomain "github.com/smallbiznis/tokenledger/internal/price/domain"
	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Models []pricedomain.CatalogEntry `yaml:"models"`
}

// LoadCatalogFile reads a YAML price catalog of the form:
//
//	models:
//	  - model: gpt-4
//	    input_price_per_k: "0.03"
//	    output_price_per_k: "0.06"
func LoadCatalogFile(path string) ([]pricedomain.CatalogEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) ([]pricedomain.CatalogEntry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse price catalog: %w", err)
	}
	return file.Models, nil
}

func sortByModelName(items []pricedomain.ModelPriceConfig) {
	slices.SortFunc(items, func(a, b pricedomain.ModelPriceConfig) int {
		return strings.Compare(a.ModelName, b.ModelName)
	})
}
