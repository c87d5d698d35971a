package weaviate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"qaforge/internal/failure"
	"qaforge/internal/index"
	"qaforge/internal/text"
	"qaforge/internal/vector"
)

// objectNamespace seeds deterministic object UUIDs derived from chunk IDs.
var objectNamespace = uuid.MustParse("6f1c3a52-8d0e-4f43-9a55-2b7e1c9d4a10")

var propertyPaths = map[string]string{
	index.FieldSourceDocument: "sourceDocument",
	index.FieldFileType:       "fileType",
}

type Store struct {
	client *weaviate.Client
	schema vector.SchemaClient
	class  string
	name   string
}

func NewStore(client *weaviate.Client, collection string) *Store {
	return &Store{
		client: client,
		schema: vector.NewSchema(client),
		class:  vector.ClassName(collection),
		name:   collection,
	}
}

func (s *Store) ClassName() string {
	return s.class
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, s.schema, s.class)
}

// ObjectID is the Weaviate UUID for a chunk of a source document. The same
// chunk of the same document maps to the same object so re-ingestion
// overwrites; equal text in another document does not collide.
func (s *Store) ObjectID(source, chunkID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(objectNamespace, []byte(s.class+"/"+source+"/"+chunkID)).String())
}

func (s *Store) Upsert(ctx context.Context, records []index.Record) error {
	if len(records) == 0 {
		return nil
	}

	objects := make([]*models.Object, 0, len(records))
	for _, r := range records {
		objects = append(objects, &models.Object{
			Class: s.class,
			ID:    s.ObjectID(r.Chunk.SourceDocument, r.Chunk.ID),
			Properties: map[string]interface{}{
				"chunkId":        r.Chunk.ID,
				"text":           r.Chunk.Text,
				"sourceDocument": r.Chunk.SourceDocument,
				"chunkIndex":     r.Chunk.ChunkIndex,
				"totalChunks":    r.Chunk.TotalChunks,
				"fileType":       r.Chunk.FileType,
			},
			Vector: r.Vector,
		})
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return err
	}

	var msgs []string
	for _, o := range resp {
		if o.Result == nil || o.Result.Errors == nil {
			continue
		}
		for _, e := range o.Result.Errors.Error {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
	}
	if len(msgs) > 0 {
		return failure.New(failure.ErrIndex, "upsert",
			fmt.Errorf("%d of %d objects rejected: %s", len(msgs), len(objects), strings.Join(msgs, "; ")))
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vec []float32, k int, filter index.Filter) ([]index.Hit, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "chunkId"},
		{Name: "text"},
		{Name: "sourceDocument"},
		{Name: "chunkIndex"},
		{Name: "totalChunks"},
		{Name: "fileType"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(fields...)

	if len(filter) > 0 {
		where, err := whereFilter(filter)
		if err != nil {
			return nil, err
		}
		query = query.WithWhere(where)
	}

	res, err := query.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, graphQLError(res.Errors)
	}

	var hits []index.Hit
	data, _ := res.Data["Get"].(map[string]interface{})
	rows, _ := data[s.class].([]interface{})
	for _, row := range rows {
		props, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		hit := index.Hit{Chunk: chunkFrom(props)}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				hit.Distance = d
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Reset drops the class and recreates it with the same configuration.
func (s *Store) Reset(ctx context.Context) error {
	return vector.ResetClass(ctx, s.schema, s.class)
}

// Stats groups objects by source document. The total is the sum of the
// group counts.
func (s *Store) Stats(ctx context.Context) (index.Stats, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(s.class).
		WithGroupBy("sourceDocument").
		WithFields(
			graphql.Field{Name: "groupedBy", Fields: []graphql.Field{{Name: "value"}}},
			graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}},
		).
		Do(ctx)
	if err != nil {
		return index.Stats{}, err
	}
	if len(res.Errors) > 0 {
		return index.Stats{}, graphQLError(res.Errors)
	}

	st := index.Stats{Collection: s.name, Documents: []string{}}
	data, _ := res.Data["Aggregate"].(map[string]interface{})
	groups, _ := data[s.class].([]interface{})
	for _, g := range groups {
		group, ok := g.(map[string]interface{})
		if !ok {
			continue
		}
		if meta, ok := group["meta"].(map[string]interface{}); ok {
			if c, ok := meta["count"].(float64); ok {
				st.TotalChunks += int(c)
			}
		}
		if by, ok := group["groupedBy"].(map[string]interface{}); ok {
			if v, ok := by["value"].(string); ok {
				st.Documents = append(st.Documents, v)
			}
		}
	}
	sort.Strings(st.Documents)
	st.TotalDocuments = len(st.Documents)
	return st, nil
}

func (s *Store) DeleteBySource(ctx context.Context, source string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.class).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"sourceDocument"}).
			WithOperator(filters.Equal).
			WithValueText(source)).
		Do(ctx)
	return err
}

// Replace removes the chunks of each source and then writes records. Weaviate
// has no multi-object transactions; callers embed before calling so the gap
// between the delete and the batch write holds no provider calls.
func (s *Store) Replace(ctx context.Context, sources []string, records []index.Record) error {
	for _, src := range sources {
		if err := s.DeleteBySource(ctx, src); err != nil {
			return err
		}
	}
	return s.Upsert(ctx, records)
}

func whereFilter(filter index.Filter) (*filters.WhereBuilder, error) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	operands := make([]*filters.WhereBuilder, 0, len(keys))
	for _, k := range keys {
		path, ok := propertyPaths[k]
		if !ok {
			return nil, failure.New(failure.ErrValidation, "search", fmt.Errorf("unknown filter field %q", k))
		}
		operands = append(operands, filters.Where().
			WithPath([]string{path}).
			WithOperator(filters.Equal).
			WithValueText(filter[k]))
	}

	if len(operands) == 1 {
		return operands[0], nil
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands), nil
}

func chunkFrom(props map[string]interface{}) text.Chunk {
	var c text.Chunk
	c.ID, _ = props["chunkId"].(string)
	c.Text, _ = props["text"].(string)
	c.SourceDocument, _ = props["sourceDocument"].(string)
	c.FileType, _ = props["fileType"].(string)
	if v, ok := props["chunkIndex"].(float64); ok {
		c.ChunkIndex = int(v)
	}
	if v, ok := props["totalChunks"].(float64); ok {
		c.TotalChunks = int(v)
	}
	return c
}

func graphQLError(errs []*models.GraphQLError) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			msgs = append(msgs, e.Message)
		}
	}
	return fmt.Errorf("graphql error: %s", strings.Join(msgs, "; "))
}
