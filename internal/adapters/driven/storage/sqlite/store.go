// Package sqlite provides a SQLite-backed chunk store with embedded
// schema migrations.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/revisely/corpus/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/revisely/corpus/internal/core/domain"
	"github.com/revisely/corpus/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.ChunkStore = (*Store)(nil)

// Store is a SQLite-backed implementation of driven.ChunkStore.
// Embedding vectors are stored as little-endian float32 BLOBs.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.corpus/data/corpus.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".corpus", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "corpus.db")

	// WAL mode for better concurrency between pipeline runs and readers
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}
		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Documents ====================

// SaveDocument stores or updates a document.
func (s *Store) SaveDocument(ctx context.Context, doc *domain.Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.ChunkingStatus == "" {
		doc.ChunkingStatus = domain.ChunkingPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, category_id, title, content, chunking_status,
			total_chunks, total_tokens, embedding_provider, embedding_dimension,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category_id = excluded.category_id,
			title = excluded.title,
			content = excluded.content,
			chunking_status = excluded.chunking_status,
			updated_at = excluded.updated_at
	`, doc.ID, doc.CategoryID, doc.Title, doc.Content, string(doc.ChunkingStatus),
		doc.TotalChunks, doc.TotalTokens, doc.EmbeddingProvider, doc.EmbeddingDimension,
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, category_id, title, content, chunking_status, total_chunks,
			total_tokens, embedding_provider, embedding_dimension, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)
	return scanDocument(row)
}

// ListDocuments returns all documents in a category.
func (s *Store) ListDocuments(ctx context.Context, categoryID string) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category_id, title, content, chunking_status, total_chunks,
			total_tokens, embedding_provider, embedding_dimension, created_at, updated_at
		FROM documents WHERE category_id = ? ORDER BY id
	`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// SetChunkingStatus updates a document's segmentation state.
func (s *Store) SetChunkingStatus(ctx context.Context, documentID string, status domain.ChunkingStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET chunking_status = ?, updated_at = ? WHERE id = ?
	`, string(status), time.Now().UTC(), documentID)
	if err != nil {
		return fmt.Errorf("updating chunking status: %w", err)
	}
	return requireRow(res)
}

// SetDocumentEmbedding records which backend embedded the document.
func (s *Store) SetDocumentEmbedding(ctx context.Context, documentID, provider string, dimension int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET embedding_provider = ?, embedding_dimension = ?, updated_at = ?
		WHERE id = ?
	`, provider, dimension, time.Now().UTC(), documentID)
	if err != nil {
		return fmt.Errorf("updating embedding provider: %w", err)
	}
	return requireRow(res)
}

// ==================== Chunks ====================

// ReplaceChunks atomically swaps in a new chunk set, topics and concept
// map for the document and marks chunking complete.
func (s *Store) ReplaceChunks(
	ctx context.Context,
	documentID string,
	chunks []domain.Chunk,
	topics []domain.Topic,
	conceptMap *domain.ConceptMap,
) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"chunks", "topics", "concept_maps"} {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE document_id = ?", documentID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, chunk_index, content, token_count,
			start_char, end_char, section_title, page_numbers, topics,
			primary_topic, key_concepts, embedding_status, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer chunkStmt.Close()

	totalTokens := 0
	for _, chunk := range chunks {
		pagesJSON, topicsJSON, conceptsJSON, err := marshalChunkLists(chunk)
		if err != nil {
			return err
		}
		if _, err := chunkStmt.ExecContext(ctx, chunk.ID, documentID, chunk.Index,
			chunk.Content, chunk.TokenCount, chunk.StartChar, chunk.EndChar,
			chunk.SectionTitle, pagesJSON, topicsJSON, chunk.PrimaryTopic,
			conceptsJSON, string(chunk.EmbeddingStatus),
			float32SliceToBytes(chunk.Embedding)); err != nil {
			return fmt.Errorf("saving chunk %d: %w", chunk.Index, err)
		}
		totalTokens += chunk.TokenCount
	}

	for _, topic := range topics {
		pagesJSON, err := json.Marshal(topic.PageNumbers)
		if err != nil {
			return fmt.Errorf("marshalling topic pages: %w", err)
		}
		chunkIDsJSON, err := json.Marshal(topic.ChunkIDs)
		if err != nil {
			return fmt.Errorf("marshalling topic chunk ids: %w", err)
		}
		conceptsJSON, err := json.Marshal(topic.KeyConcepts)
		if err != nil {
			return fmt.Errorf("marshalling topic concepts: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO topics (id, document_id, name, parent_id, start_char,
				end_char, page_numbers, chunk_ids, key_concepts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, topic.ID, documentID, topic.Name, topic.ParentID, topic.StartChar,
			topic.EndChar, string(pagesJSON), string(chunkIDsJSON),
			string(conceptsJSON)); err != nil {
			return fmt.Errorf("saving topic %q: %w", topic.Name, err)
		}
	}

	if conceptMap != nil {
		entriesJSON, err := json.Marshal(conceptMap.Entries)
		if err != nil {
			return fmt.Errorf("marshalling concept map: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO concept_maps (document_id, entries, total_concepts, total_relationships)
			VALUES (?, ?, ?, ?)
		`, documentID, string(entriesJSON), conceptMap.TotalConcepts,
			conceptMap.TotalRelationships); err != nil {
			return fmt.Errorf("saving concept map: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET chunking_status = ?, total_chunks = ?, total_tokens = ?,
			updated_at = ?
		WHERE id = ?
	`, string(domain.ChunkingComplete), len(chunks), totalTokens,
		time.Now().UTC(), documentID); err != nil {
		return fmt.Errorf("updating document counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetChunks returns all chunks for a document ordered by index.
func (s *Store) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	return s.queryChunks(ctx, `
		SELECT `+chunkColumns+` FROM chunks
		WHERE document_id = ? ORDER BY chunk_index
	`, documentID)
}

// ListPendingChunks returns the document's pending chunks ordered by index.
func (s *Store) ListPendingChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	return s.queryChunks(ctx, `
		SELECT `+chunkColumns+` FROM chunks
		WHERE document_id = ? AND embedding_status = ?
		ORDER BY chunk_index
	`, documentID, string(domain.EmbeddingPending))
}

// ListEmbeddedChunks returns embedded chunks across the category,
// optionally restricted to a document subset.
func (s *Store) ListEmbeddedChunks(ctx context.Context, categoryID string, documentIDs []string) ([]domain.Chunk, error) {
	query := `
		SELECT ` + chunkColumnsPrefixed + ` FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.category_id = ? AND c.embedding_status = ?`
	args := []any{categoryID, string(domain.EmbeddingComplete)}

	if len(documentIDs) > 0 {
		query += " AND c.document_id IN (?" + strings.Repeat(", ?", len(documentIDs)-1) + ")"
		for _, id := range documentIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY c.document_id, c.chunk_index"

	return s.queryChunks(ctx, query, args...)
}

// SaveChunkEmbeddings persists vectors and marks their chunks complete.
func (s *Store) SaveChunkEmbeddings(ctx context.Context, embeddings []driven.ChunkEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE chunks SET embedding = ?, embedding_status = ? WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("preparing embedding update: %w", err)
	}
	defer stmt.Close()

	for _, e := range embeddings {
		if _, err := stmt.ExecContext(ctx, float32SliceToBytes(e.Vector),
			string(domain.EmbeddingComplete), e.ChunkID); err != nil {
			return fmt.Errorf("saving embedding for chunk %s: %w", e.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// MarkChunksEmbeddingFailed marks the given chunks failed.
func (s *Store) MarkChunksEmbeddingFailed(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	query := "UPDATE chunks SET embedding_status = ? WHERE id IN (?" +
		strings.Repeat(", ?", len(chunkIDs)-1) + ")"
	args := []any{string(domain.EmbeddingFailed)}
	for _, id := range chunkIDs {
		args = append(args, id)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("marking chunks failed: %w", err)
	}
	return nil
}

// ==================== Topics & concept maps ====================

// GetTopics returns a document's topic segments in document order.
func (s *Store) GetTopics(ctx context.Context, documentID string) ([]domain.Topic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, name, parent_id, start_char, end_char,
			page_numbers, chunk_ids, key_concepts
		FROM topics WHERE document_id = ? ORDER BY start_char
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying topics: %w", err)
	}
	defer rows.Close()

	var topics []domain.Topic
	for rows.Next() {
		var t domain.Topic
		var parentID sql.NullString
		var pagesJSON, chunkIDsJSON, conceptsJSON string
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.Name, &parentID,
			&t.StartChar, &t.EndChar, &pagesJSON, &chunkIDsJSON, &conceptsJSON); err != nil {
			return nil, fmt.Errorf("scanning topic: %w", err)
		}
		if parentID.Valid {
			t.ParentID = &parentID.String
		}
		if err := unmarshalJSONList(pagesJSON, &t.PageNumbers); err != nil {
			return nil, err
		}
		if err := unmarshalJSONList(chunkIDsJSON, &t.ChunkIDs); err != nil {
			return nil, err
		}
		if err := unmarshalJSONList(conceptsJSON, &t.KeyConcepts); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating topics: %w", err)
	}
	return topics, nil
}

// GetConceptMap returns a document's concept map.
func (s *Store) GetConceptMap(ctx context.Context, documentID string) (*domain.ConceptMap, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document_id, entries, total_concepts, total_relationships
		FROM concept_maps WHERE document_id = ?
	`, documentID)

	var cm domain.ConceptMap
	var entriesJSON string
	if err := row.Scan(&cm.DocumentID, &entriesJSON, &cm.TotalConcepts,
		&cm.TotalRelationships); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning concept map: %w", err)
	}
	if err := json.Unmarshal([]byte(entriesJSON), &cm.Entries); err != nil {
		return nil, fmt.Errorf("unmarshalling concept map: %w", err)
	}
	return &cm, nil
}

// ==================== scanning helpers ====================

const chunkColumns = `id, document_id, chunk_index, content, token_count,
	start_char, end_char, section_title, page_numbers, topics, primary_topic,
	key_concepts, embedding_status, embedding`

const chunkColumnsPrefixed = `c.id, c.document_id, c.chunk_index, c.content,
	c.token_count, c.start_char, c.end_char, c.section_title, c.page_numbers,
	c.topics, c.primary_topic, c.key_concepts, c.embedding_status, c.embedding`

func (s *Store) queryChunks(ctx context.Context, query string, args ...any) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status string
	var createdAt, updatedAt sql.NullTime
	if err := row.Scan(&doc.ID, &doc.CategoryID, &doc.Title, &doc.Content,
		&status, &doc.TotalChunks, &doc.TotalTokens, &doc.EmbeddingProvider,
		&doc.EmbeddingDimension, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.ChunkingStatus = domain.ChunkingStatus(status)
	if createdAt.Valid {
		doc.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		doc.UpdatedAt = updatedAt.Time
	}
	return &doc, nil
}

func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var status string
	var pagesJSON, topicsJSON, conceptsJSON string
	var embeddingBlob []byte
	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Index, &chunk.Content,
		&chunk.TokenCount, &chunk.StartChar, &chunk.EndChar, &chunk.SectionTitle,
		&pagesJSON, &topicsJSON, &chunk.PrimaryTopic, &conceptsJSON,
		&status, &embeddingBlob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	chunk.EmbeddingStatus = domain.EmbeddingStatus(status)
	chunk.Embedding = bytesToFloat32Slice(embeddingBlob)
	if err := unmarshalJSONList(pagesJSON, &chunk.PageNumbers); err != nil {
		return nil, err
	}
	if err := unmarshalJSONList(topicsJSON, &chunk.Topics); err != nil {
		return nil, err
	}
	if err := unmarshalJSONList(conceptsJSON, &chunk.KeyConcepts); err != nil {
		return nil, err
	}
	return &chunk, nil
}

func marshalChunkLists(chunk domain.Chunk) (pages, topics, concepts string, err error) {
	pagesJSON, err := json.Marshal(chunk.PageNumbers)
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling page numbers: %w", err)
	}
	topicsJSON, err := json.Marshal(chunk.Topics)
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling topics: %w", err)
	}
	conceptsJSON, err := json.Marshal(chunk.KeyConcepts)
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling key concepts: %w", err)
	}
	return string(pagesJSON), string(topicsJSON), string(conceptsJSON), nil
}

func unmarshalJSONList[T any](data string, target *T) error {
	if data == "" || data == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), target); err != nil {
		return fmt.Errorf("unmarshalling list: %w", err)
	}
	return nil
}

// requireRow converts a zero-row update into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
