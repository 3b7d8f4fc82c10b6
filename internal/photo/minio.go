package photo

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
)

// MinioStore выгружает медиа в S3-совместимое хранилище
type MinioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinioStore создает хранилище; publicURL - префикс ссылок, по умолчанию endpoint клиента
func NewMinioStore(client *minio.Client, bucket, publicURL string) *MinioStore {
	if publicURL == "" {
		publicURL = client.EndpointURL().String()
	}
	return &MinioStore{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (s *MinioStore) Save(ctx context.Context, name string, p *Photo) (string, error) {
	object := name + p.Extension
	_, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(p.Data), int64(len(p.Data)), minio.PutObjectOptions{
		ContentType: p.MIMEType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to bucket %s: %w", object, s.bucket, err)
	}
	return s.ObjectURL(object), nil
}

func (s *MinioStore) ObjectURL(object string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, object)
}
