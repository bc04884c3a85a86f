package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// vectorIndexName is the Atlas search index expected on the embeddings
// collection. It is created out of band; the store only probes for it.
const vectorIndexName = "embeddings_vector_index"

// HasVectorIndex lists the search indexes on the embeddings collection and
// reports whether a queryable cosine index on the vector field with the
// given dimensionality exists. Deployments without Atlas search support
// make the listing fail, which reads as "no index".
func (s *MongoStore) HasVectorIndex(ctx context.Context, dimensions int) bool {
	cursor, err := s.embeddings.SearchIndexes().List(ctx, nil)
	if err != nil {
		s.logger.Debug("search index listing failed, using in-memory search", zap.Error(err))
		return false
	}
	defer cursor.Close(ctx)

	var indexes []searchIndexDoc
	if err := cursor.All(ctx, &indexes); err != nil {
		s.logger.Debug("search index decode failed, using in-memory search", zap.Error(err))
		return false
	}

	for _, idx := range indexes {
		if idx.Name != vectorIndexName {
			continue
		}
		if idx.Status != "READY" && !idx.Queryable {
			s.logger.Warn("vector index exists but is not queryable",
				zap.String("status", idx.Status),
			)
			continue
		}
		for _, field := range idx.LatestDefinition.Fields {
			if field.Type == "vector" && field.Path == "vector" &&
				field.NumDimensions == dimensions && field.Similarity == "cosine" {
				return true
			}
		}
		s.logger.Warn("vector index definition does not match embeddings",
			zap.Int("wantDimensions", dimensions),
		)
	}
	return false
}

type searchIndexDoc struct {
	Name             string `bson:"name"`
	Status           string `bson:"status"`
	Queryable        bool   `bson:"queryable"`
	LatestDefinition struct {
		Fields []struct {
			Type          string `bson:"type"`
			Path          string `bson:"path"`
			NumDimensions int    `bson:"numDimensions"`
			Similarity    string `bson:"similarity"`
		} `bson:"fields"`
	} `bson:"latestDefinition"`
}

// VectorSearch runs a $vectorSearch aggregation filtered to a single job
// and returns chunk ids with their similarity scores, best first.
func (s *MongoStore) VectorSearch(ctx context.Context, jobID string, vector []float32, limit int) ([]ScoredChunk, error) {
	numCandidates := limit * 10
	if numCandidates > 1000 {
		numCandidates = 1000
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: vectorIndexName},
			{Key: "path", Value: "vector"},
			{Key: "queryVector", Value: vector},
			{Key: "numCandidates", Value: numCandidates},
			{Key: "limit", Value: limit},
			{Key: "filter", Value: bson.D{{Key: "jobId", Value: jobID}}},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "chunkId", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cursor, err := s.embeddings.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ChunkID string  `bson:"chunkId"`
		Score   float64 `bson:"score"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	results := make([]ScoredChunk, len(docs))
	for i, doc := range docs {
		results[i] = ScoredChunk{ChunkID: doc.ChunkID, Score: doc.Score}
	}
	return results, nil
}
