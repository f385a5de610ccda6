package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Open for unknown or malformed ids.
var ErrNotFound = errors.New("media not found")

const bucketName = "media_files"

// Mongo bundles the client and the GridFS bucket built on it.
type Mongo struct {
	Client *mongo.Client
	Bucket *gridfs.Bucket
}

// Connect dials MongoDB, pings it and opens the media bucket.
func Connect(ctx context.Context, uri, database string, logger *zap.Logger) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	bucket, err := gridfs.NewBucket(client.Database(database), options.GridFSBucket().SetName(bucketName))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create gridfs bucket: %w", err)
	}

	logger.Info("connected to mongodb", zap.String("database", database), zap.String("bucket", bucketName))

	return &Mongo{Client: client, Bucket: bucket}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// GridFSStore keeps uploads in GridFS and hands out URLs served by Handler.
type GridFSStore struct {
	bucket  *gridfs.Bucket
	baseURL string
}

func NewGridFSStore(bucket *gridfs.Bucket, publicBaseURL string) *GridFSStore {
	return &GridFSStore{bucket: bucket, baseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (s *GridFSStore) Upload(ctx context.Context, obj Object) (string, error) {
	metadata := bson.M{
		"mime_type":   obj.ContentType,
		"uploaded_by": obj.UploadedBy,
		"uploaded_at": time.Now().UTC(),
	}

	filename := obj.Filename
	if filename == "" {
		filename = "upload"
	}

	opts := options.GridFSUpload().SetMetadata(metadata)
	stream, err := s.bucket.OpenUploadStream(filename, opts)
	if err != nil {
		return "", fmt.Errorf("open upload stream: %w", err)
	}

	if _, err := io.Copy(stream, bytes.NewReader(obj.Data)); err != nil {
		_ = stream.Abort()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := stream.Close(); err != nil {
		return "", fmt.Errorf("finish upload: %w", err)
	}

	id, ok := stream.FileID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected gridfs file id %T", stream.FileID)
	}

	return s.baseURL + "/media/" + id.Hex(), nil
}

// File is an open download.
type File struct {
	io.ReadCloser
	ContentType string
	Size        int64
	UploadedAt  time.Time
}

// Open streams a stored file back by its hex id.
func (s *GridFSStore) Open(ctx context.Context, id string) (*File, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	stream, err := s.bucket.OpenDownloadStream(oid)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open download stream: %w", err)
	}

	info := stream.GetFile()
	var metadata bson.M
	if info.Metadata != nil {
		_ = bson.Unmarshal(info.Metadata, &metadata)
	}

	contentType, _ := metadata["mime_type"].(string)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &File{
		ReadCloser:  stream,
		ContentType: contentType,
		Size:        info.Length,
		UploadedAt:  info.UploadDate,
	}, nil
}
