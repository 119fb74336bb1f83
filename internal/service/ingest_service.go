package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pgvector/pgvector-go"

	"partychat-go/internal/config"
	"partychat-go/internal/model"
	"partychat-go/internal/repository"
	"partychat-go/pkg/embedding"
	"partychat-go/pkg/log"
	"partychat-go/pkg/tasks"
)

// Ingestion step names carried by IngestStepError.
const (
	StepExtract = "extract"
	StepChunk   = "chunk"
	StepEmbed   = "embed"
	StepPersist = "persist"
)

// IngestStepError reports which pipeline stage failed so callers can
// tell a parser problem from a provider or database problem.
type IngestStepError struct {
	Step string
	Err  error
}

func (e *IngestStepError) Error() string {
	return fmt.Sprintf("ingestion step %q failed: %v", e.Step, e.Err)
}

func (e *IngestStepError) Unwrap() error {
	return e.Err
}

// TextExtractor pulls plain text and page counts out of a PDF stream.
type TextExtractor interface {
	ExtractText(fileReader io.Reader, fileName string) (string, error)
	PageCount(fileReader io.Reader, fileName string) (int, error)
}

// ObjectFetcher retrieves an uploaded program from object storage.
type ObjectFetcher interface {
	GetObject(ctx context.Context, objectName string) (io.ReadCloser, error)
}

// IngestFailure records one document that could not be processed.
type IngestFailure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// IngestionSummary is the outcome of a directory-wide ingestion run.
type IngestionSummary struct {
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Failures  []IngestFailure `json:"failures,omitempty"`
}

// IngestProgress reports where a directory run currently stands. It is
// emitted after each document finishes, whatever the outcome.
type IngestProgress struct {
	File    string
	Index   int
	Total   int
	Percent float64
	Status  string
}

// IngestService runs the PDF ingestion pipeline.
type IngestService interface {
	// IngestFile processes a single program PDF from the local
	// filesystem. Completed programs are skipped unless force is set.
	IngestFile(ctx context.Context, path string, force bool) error
	// IngestAll scans the configured source directory and ingests every
	// PDF in it, one at a time. A failing document is recorded in the
	// summary and does not stop the run. onProgress may be nil.
	IngestAll(ctx context.Context, onProgress func(IngestProgress)) (*IngestionSummary, error)
	// ProcessTask handles an ingestion task from the queue, reading the
	// uploaded object from storage instead of the local filesystem.
	ProcessTask(ctx context.Context, task tasks.ProgramIngestTask) error
	// Status reports every known program with its processing state.
	Status() ([]model.PartyProgram, error)
}

type ingestService struct {
	extractor     TextExtractor
	fetcher       ObjectFetcher
	embedder      embedding.Client
	partyRepo     repository.PartyRepository
	programRepo   repository.ProgramRepository
	chunkRepo     repository.ChunkRepository
	embeddingRepo repository.EmbeddingRepository
	cfg           config.IngestionConfig
}

func NewIngestService(
	extractor TextExtractor,
	fetcher ObjectFetcher,
	embedder embedding.Client,
	partyRepo repository.PartyRepository,
	programRepo repository.ProgramRepository,
	chunkRepo repository.ChunkRepository,
	embeddingRepo repository.EmbeddingRepository,
	cfg config.IngestionConfig,
) IngestService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 100
	}
	return &ingestService{
		extractor:     extractor,
		fetcher:       fetcher,
		embedder:      embedder,
		partyRepo:     partyRepo,
		programRepo:   programRepo,
		chunkRepo:     chunkRepo,
		embeddingRepo: embeddingRepo,
		cfg:           cfg,
	}
}

func (s *ingestService) IngestFile(ctx context.Context, path string, force bool) error {
	fileName := filepath.Base(path)
	partyCode, year, err := parseProgramFileName(fileName)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open program file: %w", err)
	}
	defer f.Close()

	return s.ingest(ctx, f, path, fileName, partyCode, year, force)
}

func (s *ingestService) IngestAll(ctx context.Context, onProgress func(IngestProgress)) (*IngestionSummary, error) {
	entries, err := os.ReadDir(s.cfg.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("read source directory %s: %w", s.cfg.SourceDir, err)
	}

	var pdfs []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			pdfs = append(pdfs, entry.Name())
		}
	}

	summary := &IngestionSummary{Total: len(pdfs)}
	for i, name := range pdfs {
		path := filepath.Join(s.cfg.SourceDir, name)
		err := s.IngestFile(ctx, path, false)
		status := "completed"
		switch {
		case err == nil:
			summary.Succeeded++
		case errors.Is(err, errAlreadyIngested):
			summary.Skipped++
			status = "skipped"
		default:
			summary.Failed++
			status = "failed"
			summary.Failures = append(summary.Failures, IngestFailure{File: name, Error: err.Error()})
			log.Errorw("[IngestService] document failed, continuing with the rest",
				"file", name, "error", err)
		}
		if onProgress != nil {
			onProgress(IngestProgress{
				File:    name,
				Index:   i + 1,
				Total:   len(pdfs),
				Percent: float64(i+1) / float64(len(pdfs)) * 100,
				Status:  status,
			})
		}
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
	}

	log.Infow("[IngestService] directory ingestion finished",
		"total", summary.Total, "succeeded", summary.Succeeded,
		"skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

func (s *ingestService) ProcessTask(ctx context.Context, task tasks.ProgramIngestTask) error {
	log.Infof("[IngestService] processing queued task, Object: %s, Party: %s", task.ObjectName, task.PartyCode)

	object, err := s.fetcher.GetObject(ctx, task.ObjectName)
	if err != nil {
		return fmt.Errorf("fetch object %s: %w", task.ObjectName, err)
	}
	defer object.Close()

	err = s.ingest(ctx, object, task.ObjectName, task.FileName, task.PartyCode, task.Year, task.Force)
	if err == errAlreadyIngested {
		return nil
	}
	return err
}

func (s *ingestService) Status() ([]model.PartyProgram, error) {
	return s.programRepo.FindAll()
}

// errAlreadyIngested marks the no-op path for completed programs.
var errAlreadyIngested = errors.New("program already ingested")

func (s *ingestService) ingest(ctx context.Context, r io.Reader, sourcePath, fileName, partyCode string, year int, force bool) error {
	party, err := s.partyRepo.FindByCode(partyCode)
	if err != nil {
		return fmt.Errorf("unknown party code %q: %w", partyCode, err)
	}

	program, err := s.programRepo.FindOrCreateBySourcePath(&model.PartyProgram{
		PartyID:    party.ID,
		Title:      fmt.Sprintf("%s program %d", party.Name, year),
		Year:       year,
		SourcePath: sourcePath,
		Status:     model.ProgramStatusPending,
	})
	if err != nil {
		return fmt.Errorf("register program: %w", err)
	}
	if program.Status == model.ProgramStatusCompleted && !force {
		log.Infof("[IngestService] program %d already completed, skipping %s", program.ID, fileName)
		return errAlreadyIngested
	}

	if err := s.programRepo.UpdateStatus(program.ID, model.ProgramStatusProcessing, ""); err != nil {
		return fmt.Errorf("mark program processing: %w", err)
	}

	stepErr := s.runPipeline(ctx, r, fileName, program)
	if stepErr != nil {
		if err := s.programRepo.UpdateStatus(program.ID, model.ProgramStatusFailed, stepErr.Error()); err != nil {
			log.Warnf("[IngestService] could not record failure for program %d: %v", program.ID, err)
		}
		return stepErr
	}
	return nil
}

func (s *ingestService) runPipeline(ctx context.Context, r io.Reader, fileName string, program *model.PartyProgram) error {
	log.Infof("[IngestService] step 1: extracting text, FileName: %s", fileName)
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(r); err != nil {
		return &IngestStepError{Step: StepExtract, Err: err}
	}
	if buf.Len() == 0 {
		return &IngestStepError{Step: StepExtract, Err: fmt.Errorf("file %s is empty", fileName)}
	}

	text, err := s.extractor.ExtractText(bytes.NewReader(buf.Bytes()), fileName)
	if err != nil {
		return &IngestStepError{Step: StepExtract, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return &IngestStepError{Step: StepExtract, Err: fmt.Errorf("no text extracted from %s", fileName)}
	}
	pageCount, err := s.extractor.PageCount(bytes.NewReader(buf.Bytes()), fileName)
	if err != nil {
		log.Warnf("[IngestService] page count unavailable for %s: %v", fileName, err)
		pageCount = 0
	}
	log.Infof("[IngestService] step 1: extracted %d characters, %d pages", utf8.RuneCountInString(text), pageCount)

	log.Infof("[IngestService] step 2: chunking, size: %d, overlap: %d", s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	chunks := chunkProgramText(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap, pageCount)
	if len(chunks) == 0 {
		return &IngestStepError{Step: StepChunk, Err: fmt.Errorf("no chunks produced for %s", fileName)}
	}
	log.Infof("[IngestService] step 2: produced %d chunks", len(chunks))

	log.Infof("[IngestService] step 3: embedding %d chunks", len(chunks))
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Content)
	}
	vectors, err := s.embedder.CreateEmbeddings(ctx, texts)
	if err != nil {
		return &IngestStepError{Step: StepEmbed, Err: err}
	}

	log.Infof("[IngestService] step 4: persisting chunks and embeddings for program %d", program.ID)
	if err := s.persist(program, text, pageCount, chunks, vectors); err != nil {
		return &IngestStepError{Step: StepPersist, Err: err}
	}

	log.Infof("[IngestService] program %d ingested successfully", program.ID)
	return nil
}

func (s *ingestService) persist(program *model.PartyProgram, text string, pageCount int, chunks []programChunk, vectors [][]float32) error {
	// Re-ingestion replaces all derived rows so repeated runs never
	// accumulate duplicates.
	if err := s.embeddingRepo.DeleteByProgramID(program.ID); err != nil {
		return fmt.Errorf("clear old embeddings: %w", err)
	}
	if err := s.chunkRepo.DeleteByProgramID(program.ID); err != nil {
		return fmt.Errorf("clear old chunks: %w", err)
	}

	dbChunks := make([]*model.ProgramChunk, 0, len(chunks))
	dbEmbeddings := make([]*model.ProgramEmbedding, 0, len(chunks))
	for i, c := range chunks {
		dbChunks = append(dbChunks, &model.ProgramChunk{
			ProgramID:    program.ID,
			Content:      c.Content,
			ChapterTitle: c.ChapterTitle,
			PageNumber:   c.PageNumber,
		})
		dbEmbeddings = append(dbEmbeddings, &model.ProgramEmbedding{
			ProgramID:    program.ID,
			Content:      c.Content,
			Embedding:    pgvector.NewVector(vectors[i]),
			ChapterTitle: c.ChapterTitle,
			PageNumber:   c.PageNumber,
		})
	}
	if err := s.chunkRepo.BatchCreate(dbChunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	if err := s.embeddingRepo.BatchCreate(dbEmbeddings); err != nil {
		return fmt.Errorf("store embeddings: %w", err)
	}

	program.FullText = text
	program.PageCount = pageCount
	program.Status = model.ProgramStatusCompleted
	program.ProcessingError = ""
	if err := s.programRepo.Update(program); err != nil {
		return fmt.Errorf("mark program completed: %w", err)
	}
	return nil
}

// parseProgramFileName expects names like "ap_2025.pdf" and returns the
// upper-cased party code with the program year.
func parseProgramFileName(fileName string) (string, int, error) {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("file name %q does not match <code>_<year>.pdf", fileName)
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("file name %q has a non-numeric year: %w", fileName, err)
	}
	return strings.ToUpper(parts[0]), year, nil
}

type programChunk struct {
	Content      string
	ChapterTitle string
	PageNumber   int
}

// chunkProgramText splits text into overlapping windows and annotates
// each window with the most recent heading above it plus an estimated
// page number derived from the window's position in the document.
func chunkProgramText(text string, chunkSize, chunkOverlap, pageCount int) []programChunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if chunkSize <= chunkOverlap {
		chunkOverlap = 0
	}

	headings := collectHeadings(text)

	var chunks []programChunk
	step := chunkSize - chunkOverlap
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		content := strings.TrimSpace(string(runes[i:end]))
		if content != "" {
			chunks = append(chunks, programChunk{
				Content:      content,
				ChapterTitle: headingAt(headings, i),
				PageNumber:   estimatePage(i, len(runes), pageCount),
			})
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

type headingMark struct {
	offset int
	title  string
}

// collectHeadings scans the document line by line and records lines
// that look like chapter headings: short, non-terminated, starting with
// an upper-case letter or a section number.
func collectHeadings(text string) []headingMark {
	var marks []headingMark
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if isHeading(trimmed) {
			marks = append(marks, headingMark{offset: offset, title: trimmed})
		}
		offset += utf8.RuneCountInString(line) + 1
	}
	return marks
}

func isHeading(line string) bool {
	if line == "" || utf8.RuneCountInString(line) > 80 {
		return false
	}
	if strings.HasSuffix(line, ".") || strings.HasSuffix(line, ",") {
		return false
	}
	first, _ := utf8.DecodeRuneInString(line)
	return unicode.IsUpper(first) || unicode.IsDigit(first)
}

func headingAt(marks []headingMark, offset int) string {
	title := ""
	for _, m := range marks {
		if m.offset > offset {
			break
		}
		title = m.title
	}
	return title
}

func estimatePage(offset, totalRunes, pageCount int) int {
	if pageCount <= 0 || totalRunes == 0 {
		return 0
	}
	page := offset*pageCount/totalRunes + 1
	if page > pageCount {
		page = pageCount
	}
	return page
}
