package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/jamaly87/code-reader/internal/models"
	"github.com/jamaly87/code-reader/pkg/config"
)

const (
	serverSelectionTimeout = 5 * time.Second
	connectTimeout         = 10 * time.Second
	minPoolSize            = 2
	maxPoolSize            = 10

	reconnectInitial  = time.Second
	reconnectMax      = 60 * time.Second
	reconnectAttempts = 3
)

// MongoStore implements Store on top of a MongoDB database
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger

	jobs       *mongo.Collection
	files      *mongo.Collection
	chunks     *mongo.Collection
	embeddings *mongo.Collection
}

// Connect probes the candidate URIs in priority order and commits to the
// first that answers a ping within the server-selection timeout. A failed
// URI is not retried later; callers wanting retry wrap with ConnectWithRetry.
func Connect(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	candidates := cfg.CandidateURIs()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no MongoDB URIs configured")
	}

	var lastErr error
	for _, candidate := range candidates {
		opts := options.Client().
			ApplyURI(candidate.URI).
			SetServerSelectionTimeout(serverSelectionTimeout).
			SetConnectTimeout(connectTimeout).
			SetMinPoolSize(minPoolSize).
			SetMaxPoolSize(maxPoolSize)

		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			logger.Warn("mongodb connect failed", zap.String("candidate", candidate.Label), zap.Error(err))
			lastErr = err
			continue
		}

		pingCtx, cancel := context.WithTimeout(ctx, serverSelectionTimeout)
		err = client.Ping(pingCtx, readpref.Primary())
		cancel()
		if err != nil {
			logger.Warn("mongodb ping failed", zap.String("candidate", candidate.Label), zap.Error(err))
			_ = client.Disconnect(ctx)
			lastErr = err
			continue
		}

		logger.Info("connected to mongodb",
			zap.String("candidate", candidate.Label),
			zap.String("database", cfg.Database),
		)

		db := client.Database(cfg.Database)
		return &MongoStore{
			client:     client,
			db:         db,
			logger:     logger.Named("store"),
			jobs:       db.Collection("jobs"),
			files:      db.Collection("files"),
			chunks:     db.Collection("chunks"),
			embeddings: db.Collection("embeddings"),
		}, nil
	}

	return nil, fmt.Errorf("all mongodb candidates failed: %w", lastErr)
}

// ConnectWithRetry wraps Connect with exponential backoff: 1s, 2s, 4s,
// capped at 60s, for up to three attempts.
func ConnectWithRetry(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = reconnectInitial
	bo.Multiplier = 2
	bo.MaxInterval = reconnectMax
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	var st *MongoStore
	err := backoff.Retry(func() error {
		var err error
		st, err = Connect(ctx, cfg, logger)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, reconnectAttempts-1), ctx))
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Disconnect closes the underlying connection pool
func (s *MongoStore) Disconnect(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies the connection is alive
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// EnsureIndexes creates the collection indexes used by lookups and the
// uniqueness invariants of the data model.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	_, err := s.jobs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "jobId", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "identifier", Value: 1}, {Key: "version", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create jobs indexes: %w", err)
	}

	_, err = s.files.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "fileId", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "jobId", Value: 1}, {Key: "relativePath", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "jobId", Value: 1}, {Key: "batchNumber", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create files indexes: %w", err)
	}

	_, err = s.chunks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chunkId", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "jobId", Value: 1}, {Key: "relativePath", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create chunks indexes: %w", err)
	}

	_, err = s.embeddings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chunkId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "jobId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create embeddings indexes: %w", err)
	}

	return nil
}

// Jobs

func (s *MongoStore) InsertJob(ctx context.Context, job *models.Job) error {
	_, err := s.jobs.InsertOne(ctx, job)
	return err
}

func (s *MongoStore) FindJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	err := s.jobs.FindOne(ctx, bson.M{"jobId": jobID}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *MongoStore) FindLatestJob(ctx context.Context, identifier string) (*models.Job, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	var job models.Job
	err := s.jobs.FindOne(ctx, bson.M{"identifier": identifier}, opts).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *MongoStore) FindJobVersions(ctx context.Context, identifier string) ([]models.Job, error) {
	opts := options.Find().SetSort(bson.D{{Key: "version", Value: -1}})
	cursor, err := s.jobs.Find(ctx, bson.M{"identifier": identifier}, opts)
	if err != nil {
		return nil, err
	}
	var jobs []models.Job
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *MongoStore) UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error {
	now := time.Now().UTC()
	set := bson.M{"status": status, "updatedAt": now}
	update := bson.M{"$set": set}
	if status == models.JobStatusCompleted {
		set["completedAt"] = now
	}
	if errMsg != "" {
		set["error"] = errMsg
	} else {
		update["$unset"] = bson.M{"error": ""}
	}

	res, err := s.jobs.UpdateOne(ctx, bson.M{"jobId": jobID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) UpdateJobProgress(ctx context.Context, jobID string, patch ProgressPatch) error {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if patch.TotalFiles != nil {
		set["progress.totalFiles"] = *patch.TotalFiles
	}
	if patch.ProcessedFiles != nil {
		set["progress.processedFiles"] = *patch.ProcessedFiles
	}
	if patch.CurrentBatch != nil {
		set["progress.currentBatch"] = *patch.CurrentBatch
	}
	if patch.TotalBatches != nil {
		set["progress.totalBatches"] = *patch.TotalBatches
	}

	res, err := s.jobs.UpdateOne(ctx, bson.M{"jobId": jobID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.jobs.DeleteOne(ctx, bson.M{"jobId": jobID})
	return err
}

// Files

func (s *MongoStore) InsertFiles(ctx context.Context, files []models.File) error {
	if len(files) == 0 {
		return nil
	}
	docs := make([]interface{}, len(files))
	for i := range files {
		docs[i] = files[i]
	}
	_, err := s.files.InsertMany(ctx, docs)
	return err
}

func (s *MongoStore) FindBatchFiles(ctx context.Context, jobID string, batchNumber int) ([]models.File, error) {
	cursor, err := s.files.Find(ctx, bson.M{"jobId": jobID, "batchNumber": batchNumber})
	if err != nil {
		return nil, err
	}
	var files []models.File
	if err := cursor.All(ctx, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (s *MongoStore) DeleteBatchFiles(ctx context.Context, jobID string, batchNumber int) error {
	_, err := s.files.DeleteMany(ctx, bson.M{"jobId": jobID, "batchNumber": batchNumber})
	return err
}

func (s *MongoStore) DeleteJobFiles(ctx context.Context, jobID string) error {
	_, err := s.files.DeleteMany(ctx, bson.M{"jobId": jobID})
	return err
}

// Chunks

func (s *MongoStore) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]interface{}, len(chunks))
	for i := range chunks {
		docs[i] = chunks[i]
	}
	_, err := s.chunks.InsertMany(ctx, docs)
	return err
}

func (s *MongoStore) FindChunk(ctx context.Context, chunkID string) (*models.Chunk, error) {
	var chunk models.Chunk
	err := s.chunks.FindOne(ctx, bson.M{"chunkId": chunkID}).Decode(&chunk)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

func (s *MongoStore) FindChunksByFileIDs(ctx context.Context, jobID string, fileIDs []string) ([]models.Chunk, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}
	cursor, err := s.chunks.Find(ctx, bson.M{"jobId": jobID, "fileId": bson.M{"$in": fileIDs}})
	if err != nil {
		return nil, err
	}
	var chunks []models.Chunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (s *MongoStore) DeleteChunksByFileIDs(ctx context.Context, fileIDs []string) error {
	if len(fileIDs) == 0 {
		return nil
	}
	_, err := s.chunks.DeleteMany(ctx, bson.M{"fileId": bson.M{"$in": fileIDs}})
	return err
}

func (s *MongoStore) DeleteJobChunks(ctx context.Context, jobID string) error {
	_, err := s.chunks.DeleteMany(ctx, bson.M{"jobId": jobID})
	return err
}

// Embeddings

func (s *MongoStore) InsertEmbeddings(ctx context.Context, embeddings []models.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	docs := make([]interface{}, len(embeddings))
	for i := range embeddings {
		docs[i] = embeddings[i]
	}
	_, err := s.embeddings.InsertMany(ctx, docs)
	return err
}

func (s *MongoStore) FindJobEmbeddings(ctx context.Context, jobID string) ([]models.Embedding, error) {
	cursor, err := s.embeddings.Find(ctx, bson.M{"jobId": jobID})
	if err != nil {
		return nil, err
	}
	var embeddings []models.Embedding
	if err := cursor.All(ctx, &embeddings); err != nil {
		return nil, err
	}
	return embeddings, nil
}

func (s *MongoStore) DeleteEmbeddingsByChunkIDs(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	_, err := s.embeddings.DeleteMany(ctx, bson.M{"chunkId": bson.M{"$in": chunkIDs}})
	return err
}

func (s *MongoStore) DeleteJobEmbeddings(ctx context.Context, jobID string) error {
	_, err := s.embeddings.DeleteMany(ctx, bson.M{"jobId": jobID})
	return err
}
