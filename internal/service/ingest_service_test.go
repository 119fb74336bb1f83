package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partychat-go/internal/config"
	"partychat-go/internal/model"
	"partychat-go/pkg/tasks"
)

type fakeExtractor struct {
	mu        sync.Mutex
	calls     int
	text      string
	pageCount int
	failFor   string
}

func (f *fakeExtractor) ExtractText(_ io.Reader, fileName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failFor != "" && fileName == f.failFor {
		return "", errors.New("tika unavailable")
	}
	return f.text, nil
}

func (f *fakeExtractor) PageCount(_ io.Reader, _ string) (int, error) {
	return f.pageCount, nil
}

type fakeFetcher struct {
	content string
	err     error
}

func (f *fakeFetcher) GetObject(_ context.Context, _ string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.content)), nil
}

type fakeProgramRepo struct {
	mu       sync.Mutex
	nextID   uint
	programs map[string]*model.PartyProgram
	statuses []string
}

func newFakeProgramRepo() *fakeProgramRepo {
	return &fakeProgramRepo{nextID: 1, programs: make(map[string]*model.PartyProgram)}
}

func (f *fakeProgramRepo) FindOrCreateBySourcePath(program *model.PartyProgram) (*model.PartyProgram, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.programs[program.SourcePath]; ok {
		return existing, nil
	}
	program.ID = f.nextID
	f.nextID++
	f.programs[program.SourcePath] = program
	return program, nil
}

func (f *fakeProgramRepo) FindByID(id uint) (*model.PartyProgram, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.programs {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeProgramRepo) FindAll() ([]model.PartyProgram, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.PartyProgram, 0, len(f.programs))
	for _, p := range f.programs {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProgramRepo) UpdateStatus(id uint, status string, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	for _, p := range f.programs {
		if p.ID == id {
			p.Status = status
			p.ProcessingError = processingError
		}
	}
	return nil
}

func (f *fakeProgramRepo) Update(program *model.PartyProgram) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, program.Status)
	f.programs[program.SourcePath] = program
	return nil
}

type fakeChunkRepo struct {
	mu      sync.Mutex
	chunks  []*model.ProgramChunk
	deletes int
}

func (f *fakeChunkRepo) BatchCreate(chunks []*model.ProgramChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeChunkRepo) DeleteByProgramID(_ uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	f.chunks = nil
	return nil
}

func (f *fakeChunkRepo) FindByProgramID(_ uint) ([]*model.ProgramChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunks, nil
}

type fakeVectorStore struct {
	mu         sync.Mutex
	embeddings []*model.ProgramEmbedding
	deletes    int
	createErr  error
}

func (f *fakeVectorStore) BatchCreate(embeddings []*model.ProgramEmbedding) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeddings = append(f.embeddings, embeddings...)
	return nil
}

func (f *fakeVectorStore) DeleteByProgramID(_ uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	f.embeddings = nil
	return nil
}

func (f *fakeVectorStore) CountByProgramID(_ uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.embeddings)), nil
}

func (f *fakeVectorStore) SearchSimilar(_ context.Context, _ []float32, _ string, _ int, _ float64) ([]model.RetrievalResult, error) {
	return nil, nil
}

const sampleProgram = `Climate and Energy
We will cut emissions drastically over the next decade. ` + "Our plan covers transport, heating and industry in detail, with binding yearly targets and public reporting on progress toward each of them.\n\nHousing\nEveryone deserves an affordable home near where they work."

type ingestFixture struct {
	extractor   *fakeExtractor
	fetcher     *fakeFetcher
	embedder    *fakeEmbedder
	programRepo *fakeProgramRepo
	chunkRepo   *fakeChunkRepo
	vectorStore *fakeVectorStore
	svc         IngestService
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	fix := &ingestFixture{
		extractor:   &fakeExtractor{text: sampleProgram, pageCount: 4},
		fetcher:     &fakeFetcher{content: "%PDF-1.7 payload"},
		embedder:    &fakeEmbedder{vector: []float32{0.1, 0.2}},
		programRepo: newFakeProgramRepo(),
		chunkRepo:   &fakeChunkRepo{},
		vectorStore: &fakeVectorStore{},
	}
	parties := &fakePartyRepo{parties: map[string]*model.Party{
		"AP": {ID: 1, Name: "Alpha Party", ShortCode: "AP"},
	}}
	fix.svc = NewIngestService(fix.extractor, fix.fetcher, fix.embedder,
		parties, fix.programRepo, fix.chunkRepo, fix.vectorStore,
		config.IngestionConfig{ChunkSize: 120, ChunkOverlap: 20})
	return fix
}

func writeProgramFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7 payload"), 0o644))
	return path
}

func TestIngestFileFullPipeline(t *testing.T) {
	fix := newIngestFixture(t)
	path := writeProgramFile(t, t.TempDir(), "ap_2025.pdf")

	require.NoError(t, fix.svc.IngestFile(context.Background(), path, false))

	program := fix.programRepo.programs[path]
	require.NotNil(t, program)
	assert.Equal(t, model.ProgramStatusCompleted, program.Status)
	assert.Equal(t, 2025, program.Year)
	assert.Equal(t, 4, program.PageCount)
	assert.Equal(t, sampleProgram, program.FullText)
	assert.Empty(t, program.ProcessingError)

	require.NotEmpty(t, fix.chunkRepo.chunks)
	assert.Len(t, fix.vectorStore.embeddings, len(fix.chunkRepo.chunks))
	assert.Equal(t, 1, fix.embedder.batchCalls, "all chunks go to the provider in one batch call")
	assert.Equal(t, "Climate and Energy", fix.chunkRepo.chunks[0].ChapterTitle)
	assert.Equal(t, 1, fix.chunkRepo.chunks[0].PageNumber)
	for i, c := range fix.chunkRepo.chunks {
		assert.Equal(t, c.Content, fix.vectorStore.embeddings[i].Content)
	}

	// Stale rows from a previous run were cleared before inserting.
	assert.Equal(t, 1, fix.chunkRepo.deletes)
	assert.Equal(t, 1, fix.vectorStore.deletes)
}

func TestIngestFileSkipsCompletedUnlessForced(t *testing.T) {
	fix := newIngestFixture(t)
	path := writeProgramFile(t, t.TempDir(), "ap_2025.pdf")

	require.NoError(t, fix.svc.IngestFile(context.Background(), path, false))
	extractCalls := fix.extractor.calls

	err := fix.svc.IngestFile(context.Background(), path, false)
	assert.ErrorIs(t, err, errAlreadyIngested)
	assert.Equal(t, extractCalls, fix.extractor.calls, "completed program is not re-extracted")

	require.NoError(t, fix.svc.IngestFile(context.Background(), path, true))
	assert.Equal(t, extractCalls+1, fix.extractor.calls)
}

func TestIngestFileRejectsBadNames(t *testing.T) {
	fix := newIngestFixture(t)
	path := writeProgramFile(t, t.TempDir(), "program.pdf")

	err := fix.svc.IngestFile(context.Background(), path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestIngestFileUnknownPartyFails(t *testing.T) {
	fix := newIngestFixture(t)
	path := writeProgramFile(t, t.TempDir(), "zz_2025.pdf")

	err := fix.svc.IngestFile(context.Background(), path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown party code")
	assert.Equal(t, 0, fix.extractor.calls)
}

func TestIngestEmbedFailureMarksProgramFailed(t *testing.T) {
	fix := newIngestFixture(t)
	fix.embedder.err = errors.New("quota exceeded")
	path := writeProgramFile(t, t.TempDir(), "ap_2025.pdf")

	err := fix.svc.IngestFile(context.Background(), path, false)
	var stepErr *IngestStepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepEmbed, stepErr.Step)

	program := fix.programRepo.programs[path]
	assert.Equal(t, model.ProgramStatusFailed, program.Status)
	assert.Contains(t, program.ProcessingError, "quota exceeded")
	assert.Empty(t, fix.vectorStore.embeddings)
}

func TestIngestPersistFailureReportsStep(t *testing.T) {
	fix := newIngestFixture(t)
	fix.vectorStore.createErr = errors.New("disk full")
	path := writeProgramFile(t, t.TempDir(), "ap_2025.pdf")

	err := fix.svc.IngestFile(context.Background(), path, false)
	var stepErr *IngestStepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepPersist, stepErr.Step)
}

func TestIngestAllIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	writeProgramFile(t, dir, "ap_2025.pdf")
	writeProgramFile(t, dir, "bp_2025.pdf")
	writeProgramFile(t, dir, "notes.txt")

	fix := newIngestFixture(t)
	fix.extractor.failFor = "bp_2025.pdf"
	parties := &fakePartyRepo{parties: map[string]*model.Party{
		"AP": {ID: 1, Name: "Alpha Party", ShortCode: "AP"},
		"BP": {ID: 2, Name: "Beta Party", ShortCode: "BP"},
	}}
	svc := NewIngestService(fix.extractor, fix.fetcher, fix.embedder,
		parties, fix.programRepo, fix.chunkRepo, fix.vectorStore,
		config.IngestionConfig{SourceDir: dir, ChunkSize: 120, ChunkOverlap: 20})

	var updates []IngestProgress
	summary, err := svc.IngestAll(context.Background(), func(p IngestProgress) {
		updates = append(updates, p)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total, "non-pdf files are ignored")
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "bp_2025.pdf", summary.Failures[0].File)

	require.Len(t, updates, 2)
	assert.Equal(t, 50.0, updates[0].Percent)
	assert.Equal(t, "completed", updates[0].Status)
	assert.Equal(t, 100.0, updates[1].Percent)
	assert.Equal(t, "failed", updates[1].Status)
}

func TestIngestAllSecondRunSkips(t *testing.T) {
	dir := t.TempDir()
	writeProgramFile(t, dir, "ap_2025.pdf")

	fix := newIngestFixture(t)
	parties := &fakePartyRepo{parties: map[string]*model.Party{
		"AP": {ID: 1, Name: "Alpha Party", ShortCode: "AP"},
	}}
	svc := NewIngestService(fix.extractor, fix.fetcher, fix.embedder,
		parties, fix.programRepo, fix.chunkRepo, fix.vectorStore,
		config.IngestionConfig{SourceDir: dir, ChunkSize: 120, ChunkOverlap: 20})

	first, err := svc.IngestAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Succeeded)
	embeddingsAfterFirst := len(fix.vectorStore.embeddings)

	second, err := svc.IngestAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.Succeeded)
	assert.Len(t, fix.vectorStore.embeddings, embeddingsAfterFirst, "no duplicate embedding rows")
}

func TestProcessTaskReadsFromStorage(t *testing.T) {
	fix := newIngestFixture(t)
	task := tasks.ProgramIngestTask{
		ObjectName: "programs/ap_2025.pdf",
		FileName:   "ap_2025.pdf",
		PartyCode:  "AP",
		Year:       2025,
	}

	require.NoError(t, fix.svc.ProcessTask(context.Background(), task))
	program := fix.programRepo.programs["programs/ap_2025.pdf"]
	require.NotNil(t, program)
	assert.Equal(t, model.ProgramStatusCompleted, program.Status)

	// A redelivered task for the completed program is a clean no-op.
	require.NoError(t, fix.svc.ProcessTask(context.Background(), task))
}

func TestChunkProgramText(t *testing.T) {
	text := strings.Repeat("abcdefghij", 30) // 300 runes, no headings
	chunks := chunkProgramText(text, 100, 20, 3)
	require.Len(t, chunks, 4)
	assert.Equal(t, 100, len([]rune(chunks[0].Content)))
	assert.Equal(t, "", chunks[0].ChapterTitle)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 3, chunks[3].PageNumber)

	// Consecutive windows overlap by chunkSize-step runes.
	first := []rune(chunks[0].Content)
	second := []rune(chunks[1].Content)
	assert.Equal(t, string(first[80:]), string(second[:20]))
}

func TestChunkProgramTextHeadings(t *testing.T) {
	text := "Climate\n" + strings.Repeat("policy detail ", 20) + "\nHousing\n" + strings.Repeat("housing detail ", 20)
	chunks := chunkProgramText(text, 150, 0, 0)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "Climate", chunks[0].ChapterTitle)
	assert.Equal(t, "Housing", chunks[len(chunks)-1].ChapterTitle)
	assert.Equal(t, 0, chunks[0].PageNumber, "page unknown when count unavailable")
}

func TestParseProgramFileName(t *testing.T) {
	code, year, err := parseProgramFileName("ap_2025.pdf")
	require.NoError(t, err)
	assert.Equal(t, "AP", code)
	assert.Equal(t, 2025, year)

	_, _, err = parseProgramFileName("ap-2025.pdf")
	assert.Error(t, err)

	_, _, err = parseProgramFileName("ap_twenty.pdf")
	assert.Error(t, err)
}
