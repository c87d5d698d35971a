package vector

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
	DeleteClass(ctx context.Context, className string) error
}

// ClassName maps a collection name to a Weaviate class name, which must
// start with an upper-case letter.
func ClassName(collection string) string {
	r, n := utf8.DecodeRuneInString(collection)
	if r == utf8.RuneError {
		return collection
	}
	return string(unicode.ToUpper(r)) + collection[n:]
}

// ChunkProperties is the stored shape of a text.Chunk. Source and type are
// field-tokenized so equality filters and grouping see the whole value.
func ChunkProperties() []*models.Property {
	return []*models.Property{
		{Name: "chunkId", DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
		{Name: "text", DataType: []string{"text"}},
		{Name: "sourceDocument", DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
		{Name: "chunkIndex", DataType: []string{"int"}},
		{Name: "totalChunks", DataType: []string{"int"}},
		{Name: "fileType", DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
	}
}

// EnsureSchema creates the class if missing, else adds any missing properties.
// Vectors are supplied by the caller and compared by cosine distance.
func EnsureSchema(ctx context.Context, client SchemaClient, className string) error {
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := ChunkProperties()

	if !exists {
		class := &models.Class{
			Class:       className,
			Description: "A chunk of a QA support document",
			Vectorizer:  "none",
			VectorIndexConfig: map[string]interface{}{
				"distance": "cosine",
			},
			Properties: properties,
		}
		return client.CreateClass(ctx, class)
	}

	// Class exists, check for missing properties
	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[strings.ToLower(p.Name)] = true
	}

	for _, p := range properties {
		if !existingProps[strings.ToLower(p.Name)] {
			if err := client.AddProperty(ctx, className, p); err != nil {
				return err
			}
		}
	}

	return nil
}

// ResetClass deletes the class when present and recreates it empty.
func ResetClass(ctx context.Context, client SchemaClient, className string) error {
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}
	if exists {
		if err := client.DeleteClass(ctx, className); err != nil {
			return err
		}
	}
	return EnsureSchema(ctx, client, className)
}
