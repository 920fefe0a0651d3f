package schema

import (
	"errors"
	"testing"

	"github.com/asaidimu/go-quarry/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manyToOne(target string) *Association {
	return &Association{Kind: RelationManyToOne, Target: target}
}

func TestValidator_Issues(t *testing.T) {
	tests := []struct {
		name     string
		entities []*PersistentEntity
		code     string
	}{
		{
			name:     "missing entity name",
			entities: []*PersistentEntity{{Identity: longID()}},
			code:     "MISSING_NAME",
		},
		{
			name: "missing property name",
			entities: []*PersistentEntity{{
				Name: "Book", Identity: longID(), Properties: []*PersistentProperty{{Type: DataTypeString}},
			}},
			code: "MISSING_NAME",
		},
		{
			name: "single and composite identity",
			entities: []*PersistentEntity{{
				Name: "Book", Identity: longID(), CompositeIdentity: []*PersistentProperty{{Name: "isbn"}},
			}},
			code: "DUPLICATE_IDENTITY",
		},
		{
			name: "association as version",
			entities: []*PersistentEntity{{
				Name: "Book", Identity: longID(), Version: &PersistentProperty{Name: "version", Association: manyToOne("Book")},
			}},
			code: "INVALID_VERSION",
		},
		{
			name: "duplicate property",
			entities: []*PersistentEntity{{
				Name: "Book", Identity: longID(), Properties: []*PersistentProperty{{Name: "title"}, {Name: "title"}},
			}},
			code: "DUPLICATE_PROPERTY",
		},
		{
			name: "association and embedded",
			entities: []*PersistentEntity{{
				Name: "Book", Identity: longID(), Properties: []*PersistentProperty{{
					Name: "author", Association: manyToOne("Book"), Embedded: []*PersistentProperty{{Name: "name"}},
				}},
			}},
			code: "INVALID_PROPERTY",
		},
		{
			name: "association inside embedded",
			entities: []*PersistentEntity{{
				Name: "Book", Identity: longID(), Properties: []*PersistentProperty{{
					Name: "details", Embedded: []*PersistentProperty{{Name: "author", Association: manyToOne("Book")}},
				}},
			}},
			code: "INVALID_PROPERTY",
		},
		{
			name: "unknown relation kind",
			entities: []*PersistentEntity{{
				Name: "Book", Identity: longID(), Properties: []*PersistentProperty{{
					Name: "author", Association: &Association{Kind: "MANY_TO_SOME", Target: "Book"},
				}},
			}},
			code: "INVALID_RELATION",
		},
		{
			name: "unknown target",
			entities: []*PersistentEntity{{
				Name: "Book", Identity: longID(), Properties: []*PersistentProperty{{Name: "author", Association: manyToOne("Author")}},
			}},
			code: "UNKNOWN_TARGET",
		},
		{
			name: "target without identity",
			entities: []*PersistentEntity{
				{Name: "Author"},
				{Name: "Book", Identity: longID(), Properties: []*PersistentProperty{{Name: "author", Association: manyToOne("Author")}}},
			},
			code: "MISSING_IDENTITY",
		},
		{
			name: "many-to-one with mappedBy",
			entities: []*PersistentEntity{
				{Name: "Author", Identity: longID()},
				{Name: "Book", Identity: longID(), Properties: []*PersistentProperty{{
					Name: "author", Association: &Association{Kind: RelationManyToOne, Target: "Author", MappedBy: "books"},
				}}},
			},
			code: "INVALID_MAPPED_BY",
		},
		{
			name: "mappedBy not found",
			entities: []*PersistentEntity{
				{Name: "Author", Identity: longID(), Properties: []*PersistentProperty{{
					Name: "books", Association: &Association{Kind: RelationOneToMany, Target: "Book", MappedBy: "writer"},
				}}},
				{Name: "Book", Identity: longID()},
			},
			code: "MAPPED_BY_NOT_FOUND",
		},
		{
			name: "mappedBy pointing elsewhere",
			entities: []*PersistentEntity{
				{Name: "Author", Identity: longID(), Properties: []*PersistentProperty{{
					Name: "books", Association: &Association{Kind: RelationOneToMany, Target: "Book", MappedBy: "title"},
				}}},
				{Name: "Book", Identity: longID(), Properties: []*PersistentProperty{{Name: "title"}}},
			},
			code: "MAPPED_BY_MISMATCH",
		},
		{
			name: "both sides inverse",
			entities: []*PersistentEntity{
				{Name: "Author", Identity: longID(), Properties: []*PersistentProperty{{
					Name: "books", Association: &Association{Kind: RelationManyToMany, Target: "Book", MappedBy: "authors"},
				}}},
				{Name: "Book", Identity: longID(), Properties: []*PersistentProperty{{
					Name: "authors", Association: &Association{Kind: RelationManyToMany, Target: "Author", MappedBy: "books"},
				}}},
			},
			code: "NO_OWNING_SIDE",
		},
		{
			name: "both one-to-one sides own the key",
			entities: []*PersistentEntity{
				{Name: "User", Identity: longID(), Properties: []*PersistentProperty{{
					Name: "profile", Association: &Association{Kind: RelationOneToOne, Target: "Profile"},
				}}},
				{Name: "Profile", Identity: longID(), Properties: []*PersistentProperty{{
					Name: "user", Association: &Association{Kind: RelationOneToOne, Target: "User"},
				}}},
			},
			code: "AMBIGUOUS_OWNER",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(nil, tt.entities...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidEntity))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			codes := make([]string, 0, len(verr.Issues))
			for _, issue := range verr.Issues {
				codes = append(codes, issue.Code)
			}
			assert.Contains(t, codes, tt.code)
			assert.Contains(t, err.Error(), tt.code)
		})
	}
}

func TestValidator_Valid(t *testing.T) {
	r := &Registry{entities: map[string]*PersistentEntity{}}
	for _, e := range libraryEntities() {
		r.entities[e.Name] = e
		r.order = append(r.order, e)
	}

	ok, issues := NewValidator(r).Validate()
	assert.True(t, ok)
	assert.Empty(t, issues)
}
