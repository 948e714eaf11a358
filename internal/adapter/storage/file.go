package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/niksmo/smart-catalog/internal/core/domain"
	"github.com/niksmo/smart-catalog/internal/core/port"
	"gopkg.in/yaml.v3"
)

var _ port.ProductsReader = (*FileRepository)(nil)

var ErrUnsupportedFormat = errors.New("unsupported catalog file format")

// productRecord is the on-disk product. Rating is optional and defaults
// to zero.
type productRecord struct {
	Name        *string  `json:"name" yaml:"name"`
	Category    string   `json:"category" yaml:"category"`
	Price       *float64 `json:"price" yaml:"price"`
	Rating      float64  `json:"rating" yaml:"rating"`
	Description string   `json:"description" yaml:"description"`
}

// FileRepository reads products from a JSON or YAML file, chosen by
// extension.
type FileRepository struct {
	path string
}

func NewFileRepository(path string) FileRepository {
	return FileRepository{path}
}

func (r FileRepository) ReadProducts(ctx context.Context) ([]domain.Product, error) {
	const op = "FileRepository.ReadProducts"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	records, err := r.decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, r.path, err)
	}

	vs := make([]domain.Product, 0, len(records))
	for i, rec := range records {
		if rec.Name == nil {
			return nil, fmt.Errorf("%s: product #%d: missing name", op, i)
		}
		if rec.Price == nil {
			return nil, fmt.Errorf("%s: product %q: missing price", op, *rec.Name)
		}
		vs = append(vs, domain.Product{
			Name:        *rec.Name,
			Category:    rec.Category,
			Price:       *rec.Price,
			Rating:      rec.Rating,
			Description: rec.Description,
		})
	}
	return vs, nil
}

func (r FileRepository) decode(data []byte) ([]productRecord, error) {
	var records []productRecord

	switch ext := strings.ToLower(filepath.Ext(r.path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return records, nil
}
