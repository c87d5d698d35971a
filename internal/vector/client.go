package vector

import (
	"context"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// Schema is the SchemaClient backed by a live weaviate client.
type Schema struct {
	client *weaviate.Client
}

func NewSchema(client *weaviate.Client) *Schema {
	return &Schema{client: client}
}

func (s *Schema) ClassExists(ctx context.Context, class string) (bool, error) {
	return s.client.Schema().ClassExistenceChecker().WithClassName(class).Do(ctx)
}

func (s *Schema) CreateClass(ctx context.Context, class *models.Class) error {
	return s.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (s *Schema) GetClass(ctx context.Context, class string) (*models.Class, error) {
	return s.client.Schema().ClassGetter().WithClassName(class).Do(ctx)
}

// AddProperty extends an existing class, used when the chunk layout gains a field.
func (s *Schema) AddProperty(ctx context.Context, class string, prop *models.Property) error {
	return s.client.Schema().PropertyCreator().WithClassName(class).WithProperty(prop).Do(ctx)
}

func (s *Schema) DeleteClass(ctx context.Context, class string) error {
	return s.client.Schema().ClassDeleter().WithClassName(class).Do(ctx)
}
