package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)
	return gdb, mock
}

func TestSearchSimilarQueryShape(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewEmbeddingRepository(gdb)

	rows := sqlmock.NewRows([]string{"content", "similarity", "chapter_title", "page_number"}).
		AddRow("climate chapter", 0.82, "Climate", 12).
		AddRow("energy transition", 0.71, "", 30).
		AddRow("transport", 0.63, "Mobility", 41)

	mock.ExpectQuery(regexp.QuoteMeta("1 - (pe.embedding <=> $1) AS similarity")).
		WithArgs(sqlmock.AnyArg(), "AP", sqlmock.AnyArg(), 0.6, 8).
		WillReturnRows(rows)

	results, err := repo.SearchSimilar(context.Background(), []float32{0.1, 0.2}, "AP", 8, 0.6)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Results arrive ordered by descending similarity from the store.
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Similarity, results[i-1].Similarity)
	}
	assert.Equal(t, "climate chapter", results[0].Content)
	assert.Equal(t, 12, results[0].PageNumber)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchSimilarWrapsStoreErrors(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewEmbeddingRepository(gdb)

	mock.ExpectQuery("program_embeddings").WillReturnError(errors.New("connection refused"))

	_, err := repo.SearchSimilar(context.Background(), []float32{0.1}, "AP", 8, 0.6)
	var storeErr *StoreQueryError
	require.True(t, errors.As(err, &storeErr))
}

func TestSearchSimilarPassesThresholdAndLimit(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewEmbeddingRepository(gdb)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY similarity DESC")).
		WithArgs(sqlmock.AnyArg(), "gp", sqlmock.AnyArg(), 0.75, 3).
		WillReturnRows(sqlmock.NewRows([]string{"content", "similarity", "chapter_title", "page_number"}))

	results, err := repo.SearchSimilar(context.Background(), []float32{0.5}, "gp", 3, 0.75)
	require.NoError(t, err)
	assert.Empty(t, results)
	require.NoError(t, mock.ExpectationsWereMet())
}
